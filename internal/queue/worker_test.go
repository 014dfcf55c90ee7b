package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"phone-auth-service/internal/metrics"
	"phone-auth-service/pkg/cache"
)

// flakySender fails the first failures calls, then succeeds.
type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakySender) Send(ctx context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("gateway unavailable")
	}
	return nil
}

func (s *flakySender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestWorker(backend Backend, sender *flakySender) *Worker {
	counter := metrics.NewCounter(cache.NewMemory(), time.Hour)
	return NewWorker(backend, sender, counter, time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWorkerRetriesThenCompletes(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	q := NewDeliveryQueue(backend, 3)
	sender := &flakySender{failures: 2}

	jobID, err := q.Enqueue(ctx, "9999999999", "123456")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := newTestWorker(backend, sender)
	w.Start()
	defer w.Stop()

	// two failures, then the third attempt lands
	waitFor(t, func() bool { return sender.callCount() == 3 })

	// completed jobs are purged immediately
	waitFor(t, func() bool {
		_, err := backend.Job(ctx, jobID)
		return errors.Is(err, ErrJobNotFound)
	})

	failed, err := q.FailedJobs(ctx, 10)
	if err != nil {
		t.Fatalf("FailedJobs: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("FailedJobs = %d entries, want 0", len(failed))
	}
}

func TestWorkerExhaustionRetainsJob(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	q := NewDeliveryQueue(backend, 3)
	sender := &flakySender{failures: 100} // never succeeds within the cap

	jobID, err := q.Enqueue(ctx, "9999999999", "123456")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := newTestWorker(backend, sender)
	w.Start()
	defer w.Stop()

	waitFor(t, func() bool {
		jobs, err := q.FailedJobs(ctx, 10)
		return err == nil && len(jobs) == 1
	})

	if got := sender.callCount(); got != 3 {
		t.Fatalf("send attempts = %d, want 3", got)
	}

	// exhausted jobs stay retrievable, with their final state recorded
	job, err := backend.Job(ctx, jobID)
	if err != nil {
		t.Fatalf("Job after exhaustion: %v", err)
	}
	if job.Status != StatusFailed {
		t.Fatalf("job status = %q, want %q", job.Status, StatusFailed)
	}
	if job.Attempts != 3 {
		t.Fatalf("job attempts = %d, want 3", job.Attempts)
	}
	if job.LastError == "" {
		t.Fatal("job last error is empty, want the delivery failure")
	}
}

func TestEnqueueDoesNotWaitForDelivery(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	q := NewDeliveryQueue(backend, 3)

	// no worker running at all
	start := time.Now()
	if _, err := q.Enqueue(ctx, "9999999999", "123456"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Enqueue blocked for %v", elapsed)
	}
}

// A job caught mid-retry by Stop must go back to the pending queue, so
// a later worker finishes it instead of leaving it stranded in an
// active state.
func TestWorkerStopDuringBackoffHandsJobBack(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	q := NewDeliveryQueue(backend, 3)
	sender := &flakySender{failures: 1}

	jobID, err := q.Enqueue(ctx, "9999999999", "123456")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// long backoff, so Stop lands while the worker is waiting to retry
	counter := metrics.NewCounter(cache.NewMemory(), time.Hour)
	first := NewWorker(backend, sender, counter, time.Minute)
	first.Start()
	waitFor(t, func() bool { return sender.callCount() == 1 })
	first.Stop()

	job, err := backend.Job(ctx, jobID)
	if err != nil {
		t.Fatalf("Job after stop: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("job status after stop = %q, want %q", job.Status, StatusQueued)
	}

	second := newTestWorker(backend, sender)
	second.Start()
	defer second.Stop()

	waitFor(t, func() bool {
		_, err := backend.Job(ctx, jobID)
		return errors.Is(err, ErrJobNotFound)
	})

	failed, err := q.FailedJobs(ctx, 10)
	if err != nil {
		t.Fatalf("FailedJobs: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("FailedJobs = %d entries, want 0", len(failed))
	}
}

// A popped-but-unacknowledged job (a worker crash) is swept back into
// the pending queue when the next worker starts.
func TestWorkerReclaimsStrandedJob(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	q := NewDeliveryQueue(backend, 3)

	jobID, err := q.Enqueue(ctx, "9999999999", "123456")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// pop without ever acknowledging, as a crashed worker would
	if job, err := backend.Pop(ctx, time.Second); err != nil || job == nil {
		t.Fatalf("Pop = (%v, %v), want the queued job", job, err)
	}

	sender := &flakySender{}
	w := newTestWorker(backend, sender)
	w.Start()
	defer w.Stop()

	waitFor(t, func() bool {
		_, err := backend.Job(ctx, jobID)
		return sender.callCount() == 1 && errors.Is(err, ErrJobNotFound)
	})
}

func TestWorkerProcessesJobsForDifferentPhones(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	q := NewDeliveryQueue(backend, 3)
	sender := &flakySender{}

	for _, phone := range []string{"1111111111", "2222222222", "3333333333"} {
		if _, err := q.Enqueue(ctx, phone, "123456"); err != nil {
			t.Fatalf("Enqueue(%s): %v", phone, err)
		}
	}

	w := newTestWorker(backend, sender)
	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return sender.callCount() == 3 })
}
