// Package dispatch ties decision, send and feedback together: a worker pool
// consumes outbound jobs, runs the routing engine, invokes the provider and
// emits outcome events for the health feedback loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"messaging-platform/internal/message"
)

// Job is one outbound message attempt tracked by the queue.
type Job struct {
	ID        string
	Recipient string
	Payload   message.Payload

	// Attempt starts at 1 and increments on every retry.
	Attempt    int
	EnqueuedAt time.Time
}

// Handler processes one job to completion. A nil return is terminal
// success; a retryable error re-enters the queue with backoff; anything
// else fails the job permanently.
type Handler interface {
	Process(ctx context.Context, job Job) error
}

// Config controls the worker pool and retry policy.
type Config struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	Buffer      int
}

func (c Config) withDefaults() Config {
	out := c
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = time.Second
	}
	if out.Buffer <= 0 {
		out.Buffer = 256
	}
	return out
}

var ErrQueueFull = errors.New("dispatch: queue full")
var ErrQueueClosed = errors.New("dispatch: queue closed")

// Queue is an in-process job queue with per-job attempt counts and
// exponential backoff. Each job runs the handler to completion
// independently of other jobs; there is no cross-job locking.
type Queue struct {
	cfg     Config
	handler Handler
	log     *slog.Logger

	jobs    chan Job
	workers sync.WaitGroup
	retries sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewQueue(cfg Config, handler Handler, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:     cfg,
		handler: handler,
		log:     log,
		jobs:    make(chan Job, cfg.Buffer),
	}
}

// Enqueue accepts a new outbound message and returns its job id.
func (q *Queue) Enqueue(recipient string, payload message.Payload) (string, error) {
	job := Job{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Payload:    payload,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.push(job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Start launches the worker pool. Workers exit when ctx is canceled or the
// queue is stopped and drained.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.worker(ctx)
	}
}

// Stop closes the intake, waits for pending retries to resolve and for
// workers to drain the queue.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.retries.Wait()
	close(q.jobs)
	q.workers.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	err := q.handler.Process(ctx, job)
	if err == nil {
		q.log.Info("job completed", "job_id", job.ID, "attempt", job.Attempt)
		return
	}

	if !IsRetryable(err) {
		q.log.Error("job failed permanently", "job_id", job.ID, "attempt", job.Attempt, "err", err)
		return
	}
	if job.Attempt >= q.cfg.MaxAttempts {
		q.log.Error("job failed after final attempt",
			"job_id", job.ID, "attempt", job.Attempt, "err", err)
		return
	}

	delay := q.cfg.BackoffBase << (job.Attempt - 1)
	q.log.Warn("job scheduled for retry",
		"job_id", job.ID, "attempt", job.Attempt, "delay", delay, "err", err)
	q.scheduleRetry(ctx, job, delay)
}

func (q *Queue) scheduleRetry(ctx context.Context, job Job, delay time.Duration) {
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		job.Attempt++
		if err := q.push(job); err != nil {
			// Shutdown or overload between decision and re-enqueue: the
			// job is abandoned without a compensating health write.
			q.log.Error("retry dropped", "job_id", job.ID, "err", err)
		}
	}()
}

func (q *Queue) push(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w (buffer %d)", ErrQueueFull, q.cfg.Buffer)
	}
}
