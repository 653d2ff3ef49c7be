// Package jobs runs background tasks on a bounded worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when every slot in the buffer is taken.
	ErrQueueFull = errors.New("job queue full")

	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("job queue closed")
)

// Task is one unit of background work. ctx is cancelled when the queue is
// shut down without draining.
type Task func(ctx context.Context)

type job struct {
	name string
	run  Task
}

// Queue is a fixed-size worker pool fed by a buffered channel.
type Queue struct {
	tasks  chan job
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts workers goroutines reading from a buffer of size slots.
func New(workers, size int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:  make(chan job, size),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work(i)
	}
	logger.Info("Job queue started", "workers", workers, "queue_size", size)
	return q
}

// Submit enqueues t without blocking.
func (q *Queue) Submit(name string, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.tasks <- job{name: name, run: t}:
		return nil
	default:
		return fmt.Errorf("%s: %w", name, ErrQueueFull)
	}
}

// Len returns the number of queued tasks not yet picked up by a worker.
func (q *Queue) Len() int { return len(q.tasks) }

func (q *Queue) work(id int) {
	defer q.wg.Done()
	for j := range q.tasks {
		q.run(id, j)
	}
}

func (q *Queue) run(worker int, j job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Job panicked",
				"job", j.name,
				"worker", worker,
				"error", fmt.Sprint(r))
		}
	}()

	j.run(q.ctx)

	if d := time.Since(start); d > 30*time.Second {
		q.logger.Warn("Slow job", "job", j.name, "worker", worker, "duration_ms", d.Milliseconds())
	}
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish. If ctx expires first, running tasks are cancelled and ctx.Err()
// is returned once the workers exit.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("Job queue drained")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn("Job queue shutdown timeout, cancelled running jobs", "reason", ctx.Err())
		return ctx.Err()
	}
}
