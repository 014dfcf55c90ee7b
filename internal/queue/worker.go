package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"phone-auth-service/internal/metrics"
	"phone-auth-service/internal/sms"
)

const popTimeout = 2 * time.Second

// Worker consumes delivery jobs independently of the request path.
// Failed attempts are retried in place with exponential backoff (base
// doubling per attempt); jobs that exhaust their attempts are marked
// failed and retained. Delivery is at-least-once: a worker stopped
// mid-retry hands the job back to the pending queue, ids stranded on
// the processing list by a crash are reclaimed at the next start, and a
// crash between a successful send and the purge replays the job, so the
// receiving channel has to tolerate duplicates.
type Worker struct {
	backend     Backend
	sender      sms.Sender
	counter     *metrics.Counter
	backoffBase time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(backend Backend, sender sms.Sender, counter *metrics.Counter, backoffBase time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		backend:     backend,
		sender:      sender,
		counter:     counter,
		backoffBase: backoffBase,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

func (w *Worker) Start() {
	if n, err := w.backend.Reclaim(w.ctx); err != nil {
		log.Printf("[WARN] delivery: reclaim stranded jobs: %v", err)
	} else if n > 0 {
		log.Printf("delivery: reclaimed %d stranded jobs", n)
	}
	log.Println("delivery worker started")
	go w.run()
}

// Stop cancels the worker and waits for the in-flight job to settle.
func (w *Worker) Stop() {
	w.cancel()
	<-w.done
	log.Println("delivery worker stopped")
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		if w.ctx.Err() != nil {
			return
		}

		job, err := w.backend.Pop(w.ctx, popTimeout)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			log.Printf("[WARN] delivery: pop failed: %v", err)
			continue
		}
		if job == nil {
			continue
		}

		w.process(job)
	}
}

// process runs one job to a terminal state.
func (w *Worker) process(job *Job) {
	job.Status = StatusActive
	if err := w.backend.Update(w.ctx, job); err != nil {
		log.Printf("[WARN] delivery: update job %s: %v", job.ID, err)
	}

	message := fmt.Sprintf("Your verification code is %s. It expires in 2 minutes.", job.Code)

	for job.Attempts < job.MaxAttempts {
		job.Attempts++

		err := w.sender.Send(w.ctx, job.Phone, message)
		if err == nil {
			job.Status = StatusCompleted
			job.LastError = ""
			// Completed records are purged immediately to bound storage.
			if err := w.backend.Purge(w.ctx, job.ID); err != nil {
				log.Printf("[WARN] delivery: purge job %s: %v", job.ID, err)
			}
			w.counter.Increment("otp_delivery_sent")
			log.Printf("delivery: job %s sent to %s on attempt %d", job.ID, maskPhone(job.Phone), job.Attempts)
			return
		}

		if w.ctx.Err() != nil {
			// The send lost to shutdown, not to the gateway; hand the
			// job back uncounted for the next worker to resume.
			job.Attempts--
			w.requeueOnShutdown(job)
			return
		}

		job.LastError = err.Error()
		log.Printf("[WARN] delivery: job %s attempt %d/%d failed: %v", job.ID, job.Attempts, job.MaxAttempts, err)

		if job.Attempts >= job.MaxAttempts {
			break
		}

		if err := w.backend.Update(w.ctx, job); err != nil {
			log.Printf("[WARN] delivery: update job %s: %v", job.ID, err)
		}

		// Exponential backoff: base, 2*base, 4*base, ...
		backoff := w.backoffBase << (job.Attempts - 1)
		select {
		case <-time.After(backoff):
		case <-w.ctx.Done():
			w.requeueOnShutdown(job)
			return
		}
	}

	job.Status = StatusFailed
	if err := w.backend.RetainFailed(w.ctx, job); err != nil {
		log.Printf("[WARN] delivery: retain failed job %s: %v", job.ID, err)
	}
	w.counter.Increment("otp_delivery_failed")
	log.Printf("delivery: job %s exhausted %d attempts, retained for inspection", job.ID, job.MaxAttempts)
}

// requeueOnShutdown returns an unfinished job to the pending queue with
// its recorded attempt count, so a later worker resumes where this one
// stopped.
func (w *Worker) requeueOnShutdown(job *Job) {
	job.Status = StatusQueued
	if err := w.backend.Requeue(context.Background(), job); err != nil {
		log.Printf("[WARN] delivery: requeue job %s on shutdown: %v", job.ID, err)
	}
}

func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return "******" + phone[len(phone)-4:]
}
