package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner executes fire-and-forget work (stale-while-revalidate refreshes,
// opportunistic upserts) off the request path. Tasks are never awaited by
// the caller; failures and panics are logged and discarded so they cannot
// crash or block the triggering request.
type Runner struct {
	tasks    chan task
	wg       sync.WaitGroup
	stopOnce sync.Once

	// taskTimeout bounds each task, since the request context is gone by
	// the time it runs.
	taskTimeout time.Duration
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

func NewRunner(workers, queueSize int) *Runner {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	r := &Runner{
		tasks:       make(chan task, queueSize),
		taskTimeout: 30 * time.Second,
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}

	return r
}

// Go schedules fn without blocking. When the queue is full the task is
// dropped and logged.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	select {
	case r.tasks <- task{name: name, fn: fn}:
	default:
		logrus.WithField("task", name).Warn("background queue full, task dropped")
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for t := range r.tasks {
		r.run(t)
	}
}

func (r *Runner) run(t task) {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.WithFields(logrus.Fields{
				"task":  t.name,
				"panic": rec,
			}).Error("background task panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.taskTimeout)
	defer cancel()

	if err := t.fn(ctx); err != nil {
		logrus.WithField("task", t.name).WithError(err).Warn("background task failed")
	}
}

// Stop drains the queue and waits for in-flight tasks.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.tasks)
	})
	r.wg.Wait()
}
