// Package tasks runs fire-and-forget side effects on a bounded worker pool.
//
// Submit never blocks the caller and a task can never fail the code that submitted it:
// errors and panics are logged with the task's name and counted.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/ortelius/versionwatch/internal/metrics"
	"go.uber.org/zap"
)

// Func is a unit of background work.
type Func func(ctx context.Context) error

type task struct {
	name string
	fn   Func
}

// Queue is a bounded channel drained by a fixed set of workers.
type Queue struct {
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	work   chan task
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts workers goroutines over a buffer of size capacity.
func NewQueue(logger *zap.Logger, workers, capacity int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		logger: logger.Named("tasks"),
		ctx:    ctx,
		cancel: cancel,
		work:   make(chan task, capacity),
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues fn. It returns false when the queue is full or closed; the task is dropped.
func (q *Queue) Submit(name string, fn Func) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("Task dropped, queue closed", zap.String("task", name))
		metrics.TasksTotal.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case q.work <- task{name: name, fn: fn}:
		return true
	default:
		q.logger.Warn("Task dropped, queue full", zap.String("task", name))
		metrics.TasksTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// Close stops accepting work, runs everything already queued and waits for the workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.work {
		q.run(t)
	}
}

func (q *Queue) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Task panicked",
				zap.String("task", t.name),
				zap.String("panic", fmt.Sprint(r)))
			metrics.TasksTotal.WithLabelValues("panic").Inc()
		}
	}()

	if err := t.fn(q.ctx); err != nil {
		q.logger.Error("Task failed", zap.String("task", t.name), zap.Error(err))
		metrics.TasksTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.TasksTotal.WithLabelValues("ok").Inc()
}
