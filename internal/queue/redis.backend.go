package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey      = "delivery:jobs"
	processingKey = "delivery:processing"
	failedKey     = "delivery:failed"
	jobKeyPrefix  = "delivery:job:"
)

// ErrJobNotFound is returned when a job record has been purged or never
// existed.
var ErrJobNotFound = errors.New("queue: job not found")

// RedisBackend keeps the pending queue in a list and each job record in
// its own key. Pop moves the id onto a processing list (the Redis
// reliable-queue shape), where it stays until the worker acknowledges a
// terminal state or hands the job back; Reclaim sweeps the processing
// list after a crash. Records have no TTL while pending or failed;
// completed jobs are purged by the worker.
type RedisBackend struct {
	client redis.UniversalClient
}

func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Push(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, jobKeyPrefix+job.ID, raw, 0).Err(); err != nil {
		return fmt.Errorf("queue: store job: %w", err)
	}
	if err := b.client.LPush(ctx, queueKey, job.ID).Err(); err != nil {
		return fmt.Errorf("queue: enqueue job: %w", err)
	}
	return nil
}

func (b *RedisBackend) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	id, err := b.client.BLMove(ctx, queueKey, processingKey, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job, err := b.Job(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		// Record gone from under the queue entry; drop the stray id.
		_ = b.ack(ctx, id)
		return nil, nil
	}
	return job, err
}

// ack drops the id from the processing list.
func (b *RedisBackend) ack(ctx context.Context, id string) error {
	return b.client.LRem(ctx, processingKey, 1, id).Err()
}

func (b *RedisBackend) Update(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, jobKeyPrefix+job.ID, raw, 0).Err()
}

func (b *RedisBackend) Purge(ctx context.Context, id string) error {
	if err := b.client.Del(ctx, jobKeyPrefix+id).Err(); err != nil {
		return err
	}
	return b.ack(ctx, id)
}

func (b *RedisBackend) RetainFailed(ctx context.Context, job *Job) error {
	if err := b.Update(ctx, job); err != nil {
		return err
	}
	if err := b.client.LPush(ctx, failedKey, job.ID).Err(); err != nil {
		return err
	}
	return b.ack(ctx, job.ID)
}

func (b *RedisBackend) Requeue(ctx context.Context, job *Job) error {
	if err := b.Update(ctx, job); err != nil {
		return err
	}
	if err := b.client.LPush(ctx, queueKey, job.ID).Err(); err != nil {
		return err
	}
	return b.ack(ctx, job.ID)
}

// Reclaim drains the processing list back into the pending queue. Run
// at worker startup, before consuming, so jobs stranded by a crashed
// worker get redelivered.
func (b *RedisBackend) Reclaim(ctx context.Context) (int64, error) {
	var moved int64
	for {
		_, err := b.client.LMove(ctx, processingKey, queueKey, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

func (b *RedisBackend) FailedJobs(ctx context.Context, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := b.client.LRange(ctx, failedKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := b.Job(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (b *RedisBackend) Job(ctx context.Context, id string) (*Job, error) {
	raw, err := b.client.Get(ctx, jobKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job := &Job{}
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		return nil, fmt.Errorf("queue: decode job %s: %w", id, err)
	}
	return job, nil
}
