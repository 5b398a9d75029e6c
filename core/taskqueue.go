package core

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// taskQueue runs deferred work in the background. Flush waits for everything
// queued before the call.
type taskQueue struct {
	errg atomic.Pointer[errgroup.Group]
}

func newTaskQueue() *taskQueue {
	t := new(taskQueue)
	t.errg.Store(new(errgroup.Group))
	return t
}

func (t *taskQueue) Go(fn func() error) {
	t.errg.Load().Go(fn)
}

func (t *taskQueue) Flush() error {
	return t.errg.
		Swap(new(errgroup.Group)).
		Wait()
}
