// Package batch runs independent transforms on a bounded set of workers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of work.
type Task[T any] struct {
	Name  string
	Input T
}

// Outcome is the result of one task.
type Outcome[T any] struct {
	Name     string
	Input    T
	Err      error
	Duration time.Duration
}

// Handler processes one task input.
type Handler[T any] func(ctx context.Context, in T) error

// Pool bounds how many tasks run at once.
type Pool struct {
	workers int
	logger  *zap.Logger
	stats   *Stats
	// OnDone is called after every task, from the worker goroutine.
	OnDone func(name string, err error)
}

// NewPool returns a pool with n workers. n below one means one.
func NewPool(n int, logger *zap.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{workers: n, logger: logger, stats: NewStats()}
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.workers }

// Stats returns the pool's running statistics.
func (p *Pool) Stats() *Stats { return p.stats }

// Run processes every task and returns outcomes in task order. Tasks not yet
// started when ctx is cancelled fail with the context error.
func Run[T any](ctx context.Context, p *Pool, tasks []Task[T], fn Handler[T]) []Outcome[T] {
	out := make([]Outcome[T], len(tasks))
	next := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < p.workers && w < len(tasks); w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := range next {
				out[i] = process(ctx, p, worker, tasks[i], fn)
			}
		}(w)
	}
	for i := range tasks {
		next <- i
	}
	close(next)
	wg.Wait()
	return out
}

func process[T any](ctx context.Context, p *Pool, worker int, t Task[T], fn Handler[T]) (o Outcome[T]) {
	o = Outcome[T]{Name: t.Name, Input: t.Input}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
		o.Duration = time.Since(start)
		if o.Err != nil {
			p.stats.recordFailure(o.Duration)
			p.logger.Warn("task failed", zap.String("task", t.Name), zap.Int("worker", worker), zap.Error(o.Err))
		} else {
			p.stats.recordSuccess(o.Duration)
			p.logger.Debug("task done", zap.String("task", t.Name), zap.Int("worker", worker), zap.Duration("took", o.Duration))
		}
		if p.OnDone != nil {
			p.OnDone(t.Name, o.Err)
		}
	}()

	if err := ctx.Err(); err != nil {
		o.Err = err
		return o
	}
	o.Err = fn(ctx, t.Input)
	return o
}

// Errors joins the errors of failed outcomes, each prefixed with its task
// name. It returns nil when every task succeeded.
func Errors[T any](outcomes []Outcome[T]) error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name, o.Err))
		}
	}
	return errors.Join(errs...)
}
