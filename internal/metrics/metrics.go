package metrics

import (
	"context"
	"log"
	"strconv"
	"time"

	"phone-auth-service/pkg/cache"
)

const namespace = "metrics"

// Counter tallies named events in the shared store. Counts live for one
// epoch (the TTL, set when a counter is first observed) and then vanish.
type Counter struct {
	store cache.Store
	ttl   time.Duration
}

func NewCounter(store cache.Store, ttl time.Duration) *Counter {
	return &Counter{store: store, ttl: ttl}
}

// Increment tallies the event off the caller's path. Best-effort: a
// failed increment is logged and swallowed, never surfaced to the flow
// that emitted it.
func (c *Counter) Increment(name string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if _, err := c.store.IncrWithExpire(ctx, namespace, name, c.ttl); err != nil {
			log.Printf("[WARN] metrics: failed to increment %s: %v", name, err)
		}
	}()
}

// Value reads the current tally; 0 when the counter has expired or was
// never observed.
func (c *Counter) Value(ctx context.Context, name string) int64 {
	val, err := c.store.Get(ctx, namespace, name)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
