package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job statuses. Completed jobs are purged right away; failed jobs are
// retained for inspection.
const (
	StatusQueued    = "queued"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one pending code delivery. Attempts counts tries actually made;
// the worker owns all transitions after enqueue.
type Job struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	Code        string    `json:"code"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Status      string    `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Backend is the durable storage under the queue. A popped job sits on
// a processing list until a terminal call (Purge, RetainFailed) or a
// Requeue acknowledges it, so a crashed worker leaves a reclaimable
// trace instead of losing the job. The Redis backend is production; the
// in-process backend serves tests and single-node runs.
type Backend interface {
	// Push persists the job record and makes it visible to workers.
	Push(ctx context.Context, job *Job) error
	// Pop atomically moves the next job onto the processing list and
	// returns it; (nil, nil) on timeout.
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)
	// Update rewrites the persisted job record.
	Update(ctx context.Context, job *Job) error
	// Purge drops a completed job's record and acknowledges it.
	Purge(ctx context.Context, id string) error
	// RetainFailed moves the job to the failed set, keeping its record,
	// and acknowledges it.
	RetainFailed(ctx context.Context, job *Job) error
	// Requeue hands a popped job back to the pending queue, keeping its
	// record (and attempt count) intact.
	Requeue(ctx context.Context, job *Job) error
	// Reclaim moves jobs stranded on the processing list back to the
	// pending queue, reporting how many were moved.
	Reclaim(ctx context.Context) (int64, error)
	// FailedJobs lists retained failures, newest first.
	FailedJobs(ctx context.Context, limit int64) ([]*Job, error)
	// Job loads one job record by id.
	Job(ctx context.Context, id string) (*Job, error)
}

// DeliveryQueue is the producer half: it hands jobs to the backend and
// returns without waiting on delivery.
type DeliveryQueue struct {
	backend     Backend
	maxAttempts int
}

func NewDeliveryQueue(backend Backend, maxAttempts int) *DeliveryQueue {
	return &DeliveryQueue{backend: backend, maxAttempts: maxAttempts}
}

// Enqueue schedules delivery of the code and returns the job id.
func (q *DeliveryQueue) Enqueue(ctx context.Context, phone, code string) (string, error) {
	job := &Job{
		ID:          uuid.NewString(),
		Phone:       phone,
		Code:        code,
		MaxAttempts: q.maxAttempts,
		Status:      StatusQueued,
		EnqueuedAt:  time.Now(),
	}
	if err := q.backend.Push(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// FailedJobs exposes retained failures to operators.
func (q *DeliveryQueue) FailedJobs(ctx context.Context, limit int64) ([]*Job, error) {
	return q.backend.FailedJobs(ctx, limit)
}
