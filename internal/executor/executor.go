// Package executor runs independent tasks with bounded concurrency, a
// per-task deadline, and ordered results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work. It should return promptly once ctx is done, but
// Run does not depend on that.
type Task[T any] func(ctx context.Context) (T, error)

// Result holds the outcome of the task at the same index.
type Result[T any] struct {
	Value    T
	Err      error
	Duration time.Duration
}

// BatchFunc receives progress after every batch of completions.
type BatchFunc func(completed, total int)

// Options configures Run.
type Options struct {
	// Concurrency bounds the number of in-flight tasks. Defaults to 1.
	Concurrency int
	// BatchSize is the number of completions between progress callbacks.
	// Defaults to 1.
	BatchSize int
	// Timeout is the per-task deadline. Zero disables it.
	Timeout time.Duration
}

func (o Options) normalize(total int) Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Concurrency > total {
		o.Concurrency = total
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	return o
}

// Run executes tasks with at most opts.Concurrency in flight and returns
// their results in input order. A failing task never stops the others: its
// slot holds a *TimeoutError or *ExecutionError.
//
// onBatch is called from a separate goroutine after every opts.BatchSize
// completions and once at the end, with strictly increasing counts. Run
// returns after the final callback.
func Run[T any](ctx context.Context, tasks []Task[T], opts Options, onBatch BatchFunc) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	opts = opts.normalize(len(tasks))

	progress := newProgress(len(tasks), opts.BatchSize, onBatch)
	defer progress.close()

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = runOne(ctx, i, task, opts.Timeout)
			progress.step()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type outcome[T any] struct {
	value T
	err   error
}

// runOne races task against its deadline. On timeout the task goroutine is
// abandoned with a cancelled context.
func runOne[T any](ctx context.Context, index int, task Task[T], timeout time.Duration) Result[T] {
	start := time.Now()
	var zero T
	if err := ctx.Err(); err != nil {
		return Result[T]{Value: zero, Err: &ExecutionError{Index: index, Err: err}}
	}

	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		v, err := task(taskCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	timedOut := func() bool {
		return timeout > 0 && ctx.Err() == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded)
	}

	select {
	case out := <-done:
		res := Result[T]{Value: out.value, Duration: time.Since(start)}
		switch {
		case out.err == nil:
		case errors.Is(out.err, context.DeadlineExceeded) && timedOut():
			res.Value = zero
			res.Err = &TimeoutError{Index: index, Timeout: timeout}
		default:
			res.Value = zero
			res.Err = &ExecutionError{Index: index, Err: out.err}
		}
		return res
	case <-taskCtx.Done():
		res := Result[T]{Value: zero, Duration: time.Since(start)}
		if timedOut() {
			res.Err = &TimeoutError{Index: index, Timeout: timeout}
		} else {
			res.Err = &ExecutionError{Index: index, Err: ctx.Err()}
		}
		return res
	}
}

// progress serializes completion counts to a single reporter goroutine.
// The event buffer holds one slot per task, so step never blocks.
type progress struct {
	total     int
	batchSize int

	mu        sync.Mutex
	completed int
	events    chan int
	done      chan struct{}
}

func newProgress(total, batchSize int, fn BatchFunc) *progress {
	p := &progress{
		total:     total,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
	if fn == nil {
		close(p.done)
		return p
	}
	p.events = make(chan int, total)
	go func() {
		defer close(p.done)
		for completed := range p.events {
			fn(completed, total)
		}
	}()
	return p
}

func (p *progress) step() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	if p.events == nil {
		return
	}
	if p.completed%p.batchSize == 0 || p.completed == p.total {
		p.events <- p.completed
	}
}

func (p *progress) close() {
	if p.events != nil {
		close(p.events)
	}
	<-p.done
}
