package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend for tests and single-node runs
// without Redis. Pending job ids flow through a buffered channel; records
// live in a map guarded by a mutex. Popped ids are tracked in a
// processing set until acknowledged or requeued, mirroring the Redis
// backend's reliable-queue shape.
type MemoryBackend struct {
	mu         sync.Mutex
	records    map[string]Job
	failed     []string
	processing map[string]bool
	pending    chan string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records:    make(map[string]Job),
		processing: make(map[string]bool),
		pending:    make(chan string, 1024),
	}
}

func (b *MemoryBackend) Push(ctx context.Context, job *Job) error {
	b.mu.Lock()
	b.records[job.ID] = *job
	b.mu.Unlock()

	select {
	case b.pending <- job.ID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBackend) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-b.pending:
		b.mu.Lock()
		b.processing[id] = true
		b.mu.Unlock()

		job, err := b.Job(ctx, id)
		if err == ErrJobNotFound {
			b.ack(id)
			return nil, nil
		}
		return job, err
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryBackend) ack(id string) {
	b.mu.Lock()
	delete(b.processing, id)
	b.mu.Unlock()
}

func (b *MemoryBackend) Update(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[job.ID] = *job
	return nil
}

func (b *MemoryBackend) Purge(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, id)
	delete(b.processing, id)
	return nil
}

func (b *MemoryBackend) RetainFailed(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[job.ID] = *job
	b.failed = append([]string{job.ID}, b.failed...)
	delete(b.processing, job.ID)
	return nil
}

func (b *MemoryBackend) Requeue(ctx context.Context, job *Job) error {
	b.mu.Lock()
	b.records[job.ID] = *job
	delete(b.processing, job.ID)
	b.mu.Unlock()

	select {
	case b.pending <- job.ID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBackend) Reclaim(ctx context.Context) (int64, error) {
	b.mu.Lock()
	ids := make([]string, 0, len(b.processing))
	for id := range b.processing {
		ids = append(ids, id)
		delete(b.processing, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		select {
		case b.pending <- id:
		case <-ctx.Done():
			return int64(len(ids)), ctx.Err()
		}
	}
	return int64(len(ids)), nil
}

func (b *MemoryBackend) FailedJobs(ctx context.Context, limit int64) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > int64(len(b.failed)) {
		limit = int64(len(b.failed))
	}

	jobs := make([]*Job, 0, limit)
	for _, id := range b.failed[:limit] {
		if rec, ok := b.records[id]; ok {
			j := rec
			jobs = append(jobs, &j)
		}
	}
	return jobs, nil
}

func (b *MemoryBackend) Job(ctx context.Context, id string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	j := rec
	return &j, nil
}
