package rate

import (
	"context"
	"time"

	"phone-auth-service/pkg/cache"
)

const namespace = "ratelimit"

// Limiter is a fixed-window counter keyed by subject + origin (phone +
// caller address). Counters reset when the window key expires, so two
// full bursts straddling a window edge are accepted; that boundary
// effect is inherent to fixed windows and tolerated here.
type Limiter struct {
	store  cache.Store
	window time.Duration
	max    int64
}

func NewLimiter(store cache.Store, window time.Duration, max int64) *Limiter {
	return &Limiter{store: store, window: window, max: max}
}

// Allow records one request for the subject/origin pair and reports
// whether it fits in the current window. The underlying increment is a
// single atomic store operation, so concurrent requests for the same
// pair each observe a distinct count.
func (l *Limiter) Allow(ctx context.Context, subjectKey, originKey string) (bool, error) {
	cnt, err := l.store.IncrWithExpire(ctx, namespace, subjectKey+":"+originKey, l.window)
	if err != nil {
		return false, err
	}
	return cnt <= l.max, nil
}

// RetryAfter reports how long the pair's current window has left. Used
// only to enrich rate-limit rejections; 0 means no live window.
func (l *Limiter) RetryAfter(ctx context.Context, subjectKey, originKey string) time.Duration {
	ttl, err := l.store.GetTTL(ctx, namespace, subjectKey+":"+originKey)
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}
