// Package jobs runs background work on an in-process worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queue errors.
var (
	ErrNotRunning = errors.New("jobs: queue not running")
	ErrFull       = errors.New("jobs: queue full")
)

// Job is one unit of work. ID identifies it in logs and is passed to the handler.
type Job struct {
	ID       string
	Kind     string
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. Returning an error schedules a retry until attempts run out.
type Handler func(context.Context, Job) error

// Config tunes a Queue. Zero values pick defaults.
type Config struct {
	Workers    int
	Capacity   int
	MaxRetries int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
	Logger  *zap.Logger
	// OnGiveUp is called once a job has failed MaxRetries+1 times, or when a
	// retry finds the queue full.
	OnGiveUp func(Job, error)
}

// Queue dispatches jobs to a fixed set of workers over a buffered channel.
type Queue struct {
	name    string
	handler Handler
	cfg     Config
	log     *zap.Logger

	mu      sync.RWMutex
	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewQueue builds a stopped queue.
func NewQueue(name string, handler Handler, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.Capacity),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.log.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels in-flight work and waits for the workers to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.log.Info("queue stopped")
}

// Enqueue adds a job without blocking. It fails when the queue is stopped or full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrNotRunning
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

// Pending is the number of buffered jobs.
func (q *Queue) Pending() int { return len(q.jobs) }

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) run(job Job) {
	err := q.handler(q.ctx, job)
	if err == nil {
		return
	}
	if q.ctx.Err() != nil {
		return
	}
	if job.Attempt >= q.cfg.MaxRetries {
		q.log.Error("job failed permanently", zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Int("attempts", job.Attempt+1), zap.Error(err))
		if q.cfg.OnGiveUp != nil {
			q.cfg.OnGiveUp(job, err)
		}
		return
	}
	delay := q.cfg.Backoff << job.Attempt
	job.Attempt++
	q.log.Warn("job failed, retrying", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Duration("delay", delay), zap.Error(err))

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if requeueErr := q.Enqueue(job); requeueErr != nil {
				q.log.Error("requeue failed", zap.String("job_id", job.ID), zap.Error(requeueErr))
				if errors.Is(requeueErr, ErrFull) && q.cfg.OnGiveUp != nil {
					q.cfg.OnGiveUp(job, fmt.Errorf("requeue: %w (last error: %v)", requeueErr, err))
				}
			}
		}
	}()
}
