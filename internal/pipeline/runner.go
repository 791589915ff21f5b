// Package pipeline is the scheduling domain of the monitor: a bounded job
// queue fed from bus callbacks and drained by a worker pool.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of supervised work. Run errors are captured and counted,
// never propagated; a failed task is not retried.
type Task struct {
	ID   string
	Kind string
	Run  func(ctx context.Context) error
}

// Stats is a point-in-time view of the runner counters.
type Stats struct {
	Queued    int   `json:"queued"`
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

// Runner owns the queue and the workers. Submit is safe to call from any
// goroutine, including bus callbacks, and never blocks.
type Runner struct {
	queue   chan Task
	workers int
	log     *zap.Logger

	group  *errgroup.Group
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	processed atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewRunner builds a runner with the given queue capacity and worker count.
func NewRunner(queueSize, workers int, log *zap.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		queue:   make(chan Task, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the worker pool.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < r.workers; i++ {
		r.group.Go(func() error {
			for task := range r.queue {
				r.run(ctx, task)
			}
			return nil
		})
	}
	r.log.Info("pipeline started",
		zap.Int("workers", r.workers), zap.Int("queue", cap(r.queue)))
}

// Submit enqueues a task without blocking. Returns false when the queue is
// full or the runner has stopped; the caller drops the message.
func (r *Runner) Submit(task Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.queue <- task:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Stop drains the queue and waits for the workers to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.group.Wait()
	if r.cancel != nil {
		r.cancel()
	}
	r.log.Info("pipeline stopped", zap.Int64("processed", r.processed.Load()))
}

// Stats returns the current counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Queued:    len(r.queue),
		Processed: r.processed.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
	}
}

// run executes one task, converting panics into captured failures so a bad
// message cannot take a worker down.
func (r *Runner) run(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.failed.Add(1)
			r.log.Error("task panicked",
				zap.String("task", task.ID),
				zap.String("kind", task.Kind),
				zap.Any("panic", rec))
		}
	}()

	if err := task.Run(ctx); err != nil {
		r.failed.Add(1)
		r.log.Error("task failed",
			zap.String("task", task.ID),
			zap.String("kind", task.Kind),
			zap.Error(err))
		return
	}
	r.processed.Add(1)
}
