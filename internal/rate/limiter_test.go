package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"phone-auth-service/pkg/cache"
)

func TestLimiterFixedWindow(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(cache.NewMemory(), time.Minute, 5)

	for i := 1; i <= 5; i++ {
		allowed, err := l.Allow(ctx, "9999999999", "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("Allow #%d = false, want true", i)
		}
	}

	allowed, err := l.Allow(ctx, "9999999999", "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow #6: %v", err)
	}
	if allowed {
		t.Fatal("Allow #6 = true, want false")
	}
}

func TestLimiterWindowReset(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(cache.NewMemory(), 40*time.Millisecond, 1)

	if allowed, _ := l.Allow(ctx, "9999999999", "10.0.0.1"); !allowed {
		t.Fatal("first request denied")
	}
	if allowed, _ := l.Allow(ctx, "9999999999", "10.0.0.1"); allowed {
		t.Fatal("second request in window allowed")
	}

	time.Sleep(70 * time.Millisecond)

	if allowed, _ := l.Allow(ctx, "9999999999", "10.0.0.1"); !allowed {
		t.Fatal("request after window expiry denied")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(cache.NewMemory(), time.Minute, 1)

	pairs := []struct{ subject, origin string }{
		{"9999999999", "10.0.0.1"},
		{"9999999999", "10.0.0.2"}, // same phone, new address
		{"8888888888", "10.0.0.1"}, // same address, new phone
	}
	for _, p := range pairs {
		allowed, err := l.Allow(ctx, p.subject, p.origin)
		if err != nil {
			t.Fatalf("Allow(%s, %s): %v", p.subject, p.origin, err)
		}
		if !allowed {
			t.Fatalf("Allow(%s, %s) = false, want true", p.subject, p.origin)
		}
	}
}

// The increment-and-compare is one atomic operation, so N concurrent
// requests admit exactly max of them.
func TestLimiterConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(cache.NewMemory(), time.Minute, 5)

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := l.Allow(ctx, "9999999999", "10.0.0.1")
			if err == nil && allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Fatalf("admitted = %d, want exactly 5", admitted)
	}
}
