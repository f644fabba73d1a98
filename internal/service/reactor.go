// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

type reactorKey struct{}

// taskScope marks a context as belonging to a running task. It expires when
// the task returns, so a context that escapes the task no longer counts as
// being on the queue.
type taskScope struct {
	owner  *reactor
	active atomic.Bool
}

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// reactor runs submitted work one task at a time on a single goroutine, in
// submission order. Work submitted from inside a running task (recognised by
// its context) runs inline so observers can call back into the roster. The
// inline path is only valid on the queue goroutine: a goroutine started with
// a task's context must not call back while that task is still running.
type reactor struct {
	mu      sync.Mutex
	queue   []task
	closed  bool
	signal  chan struct{}
	stopped chan struct{}
}

func newReactor() *reactor {
	r := &reactor{
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *reactor) onQueue(ctx context.Context) bool {
	scope, _ := ctx.Value(reactorKey{}).(*taskScope)
	return scope != nil && scope.owner == r && scope.active.Load()
}

// do runs fn on the queue and waits for its result. If ctx is cancelled
// before fn starts, fn is skipped and ctx's error is returned. Once fn has
// started its own result is returned, whatever happens to ctx.
func (r *reactor) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.onQueue(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	if err := r.enqueue(task{ctx: ctx, fn: fn, done: done}); err != nil {
		return err
	}
	return <-done
}

// post queues fn without waiting. It runs with ctx's values but not its
// cancellation.
func (r *reactor) post(ctx context.Context, fn func(ctx context.Context)) error {
	return r.enqueue(task{
		ctx: context.WithoutCancel(ctx),
		fn: func(ctx context.Context) error {
			fn(ctx)
			return nil
		},
	})
}

func (r *reactor) enqueue(t task) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.NewServiceUnavailable("roster queue is closed")
	}
	r.queue = append(r.queue, t)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
	return nil
}

func (r *reactor) loop() {
	defer close(r.stopped)
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			if r.closed {
				r.mu.Unlock()
				return
			}
			r.mu.Unlock()
			<-r.signal
			continue
		}
		t := r.queue[0]
		r.queue[0] = task{}
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.run(t)
	}
}

func (r *reactor) run(t task) {
	if err := t.ctx.Err(); err != nil {
		if t.done != nil {
			t.done <- err
		}
		return
	}

	scope := &taskScope{owner: r}
	scope.active.Store(true)
	ctx := context.WithValue(t.ctx, reactorKey{}, scope)
	var err error
	func() {
		defer scope.active.Store(false)
		defer func() {
			if p := recover(); p != nil {
				slog.ErrorContext(ctx, "panic in roster queue task", "panic", p)
				err = errors.NewUnexpected("roster queue task panicked")
			}
		}()
		err = t.fn(ctx)
	}()

	if t.done != nil {
		t.done <- err
	}
}

// close stops accepting work, lets queued tasks finish and waits for the
// loop to exit.
func (r *reactor) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.stopped
		return
	}
	r.closed = true
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
	<-r.stopped
}
