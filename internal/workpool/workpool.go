// Package workpool runs CPU-bound work on a fixed set of goroutines fed by a
// bounded queue.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when work is submitted to, or awaited from, a pool
// that has been closed.
var ErrClosed = errors.New("workpool: closed")

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workpool: task panicked: %v", e.Value)
}

type result[Out any] struct {
	val Out
	err error
}

type task[In, Out any] struct {
	in  In
	out chan result[Out]
}

// Pool applies fn to submitted inputs using a fixed number of workers.
// Submit blocks while the queue is full, which is how callers get
// backpressure.
type Pool[In, Out any] struct {
	fn    func(In) Out
	tasks chan task[In, Out]
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// New starts a pool with the given number of workers and queue capacity.
// Non-positive values are treated as 1 worker and an unbuffered queue.
func New[In, Out any](workers, queueSize int, fn func(In) Out) *Pool[In, Out] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool[In, Out]{
		fn:    fn,
		tasks: make(chan task[In, Out], queueSize),
		done:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

// Future is the pending result of a submitted task.
type Future[Out any] struct {
	ch   chan result[Out]
	done <-chan struct{}
}

// Wait blocks until the task finishes, the context ends or the pool closes.
func (f *Future[Out]) Wait(ctx context.Context) (Out, error) {
	var zero Out
	select {
	case r := <-f.ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.done:
		select {
		case r := <-f.ch:
			return r.val, r.err
		default:
			return zero, ErrClosed
		}
	}
}

// Submit queues in for processing. It blocks while the queue is full.
func (p *Pool[In, Out]) Submit(ctx context.Context, in In) (*Future[Out], error) {
	t := task[In, Out]{in: in, out: make(chan result[Out], 1)}

	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}

	select {
	case p.tasks <- t:
		return &Future[Out]{ch: t.out, done: p.done}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

// Do submits in and waits for its result.
func (p *Pool[In, Out]) Do(ctx context.Context, in In) (Out, error) {
	f, err := p.Submit(ctx, in)
	if err != nil {
		var zero Out
		return zero, err
	}
	return f.Wait(ctx)
}

// QueueDepth reports how many tasks are waiting for a worker.
func (p *Pool[In, Out]) QueueDepth() int {
	return len(p.tasks)
}

// Close stops the workers. Tasks still queued are abandoned and their
// futures report ErrClosed.
func (p *Pool[In, Out]) Close() {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *Pool[In, Out]) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case t := <-p.tasks:
			t.out <- p.run(t.in)
		}
	}
}

func (p *Pool[In, Out]) run(in In) (r result[Out]) {
	defer func() {
		if v := recover(); v != nil {
			r = result[Out]{err: &PanicError{Value: v}}
		}
	}()
	return result[Out]{val: p.fn(in)}
}
