// Package outbox runs deferred side effects (admin notifications,
// attachment cleanup, presence mirroring) after the caller has been
// answered. Delivery is best effort: failed tasks are logged and counted,
// never retried and never reported back.
package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"im-social/pkg/logger"
	"im-social/pkg/metrics"

	"go.uber.org/zap"
)

type TaskFunc func(ctx context.Context) error

// Submitter accepts deferred tasks
type Submitter interface {
	Submit(name string, fn TaskFunc) bool
}

type task struct {
	name string
	fn   TaskFunc
}

// Queue is a bounded task queue served by a fixed set of workers
type Queue struct {
	tasks  chan task
	ttl    time.Duration
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// New starts workers draining a queue of size tasks
func New(workers, size int, ttl time.Duration) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 64
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	q := &Queue{tasks: make(chan task, size), ttl: ttl}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues fn. It returns false when the queue is full or closed;
// the task is then dropped.
func (q *Queue) Submit(name string, fn TaskFunc) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		logger.Warn("outbox closed, task dropped", zap.String("task", name))
		metrics.OutboxFailures.WithLabelValues(name).Inc()
		return false
	}

	select {
	case q.tasks <- task{name: name, fn: fn}:
		return true
	default:
		logger.Warn("outbox full, task dropped", zap.String("task", name))
		metrics.OutboxFailures.WithLabelValues(name).Inc()
		return false
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		run(t, q.ttl)
	}
}

func run(t task, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("outbox task panicked", zap.String("task", t.name), zap.Any("panic", r))
			metrics.OutboxFailures.WithLabelValues(t.name).Inc()
		}
	}()

	if err := t.fn(ctx); err != nil {
		logger.Warn("outbox task failed", zap.String("task", t.name), zap.Error(err))
		metrics.OutboxFailures.WithLabelValues(t.name).Inc()
	}
}

// Close stops intake and waits for queued tasks, up to ctx
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("outbox: shutdown timed out with tasks pending")
	}
}

// Inline runs tasks synchronously on Submit. Used by tests and tools.
type Inline struct {
	TTL time.Duration
}

// Submit runs fn immediately and logs its error
func (i Inline) Submit(name string, fn TaskFunc) bool {
	ttl := i.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	run(task{name: name, fn: fn}, ttl)
	return true
}
