// Package task manages the goroutines owned by a session or scheduler: the
// transport reader, the command writer, and the polling loop.
//
// A Manager starts named tasks under a shared context. Stop cancels that context
// and Wait blocks until every task has returned, after which the manager can be
// reused for a new generation of tasks.
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("reader", func() bool {
//	    // ... read one frame ...
//	    return true // false ends the task
//	})
//	mgr.Stop()
//	mgr.Wait()
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-apt/logger"
)

// ErrStopped is returned when a task is started on a manager whose context is done.
var ErrStopped = errors.New("task: manager stopped")

const startTimeout = 5 * time.Second

// Func is the body of a looping task.
// It should return true to run again, or false to end the task.
type Func func() bool

// Manager owns the lifecycle of a group of goroutines.
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a Manager using ctx as the parent of every task generation.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context of the current task generation.
// It is done once Stop is called or the parent context ends.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs taskFunc in a new goroutine until it returns false or the manager stops.
//
// A panic inside taskFunc is logged and ends the task.
func (mgr *Manager) Start(name string, taskFunc Func) error {
	mgr.logger.Debug("task: start", "name", name)

	return mgr.spawn(name, func(ctx context.Context) {
		mgr.runLoop(ctx, name, taskFunc)
	})
}

// StartConsumer runs fn for every value received from in, until fn returns false,
// in is closed, or the manager stops.
func StartConsumer[T any](mgr *Manager, name string, in <-chan T, fn func(T) bool) error {
	if in == nil {
		return fmt.Errorf("task: input channel of %s is nil", name)
	}

	mgr.logger.Debug("task: start consumer", "name", name)

	return mgr.spawn(name, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					mgr.logger.Debug("task: input channel closed", "name", name)
					return
				}
				if !mgr.callWithRecover(name, func() bool { return fn(v) }) {
					return
				}
			}
		}
	})
}

// Stop signals all running tasks of the current generation.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cancel != nil {
		mgr.cancel()
	}
}

// Wait blocks until all tasks have terminated, then prepares a fresh context so
// the manager can start new tasks.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	if mgr.ctx.Err() != nil {
		mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	}
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func(ctx context.Context)) error {
	ctx := mgr.Context()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: cannot start %s", ErrStopped, name)
	}

	started := make(chan struct{})

	mgr.taskMu.RLock()
	mgr.wg.Add(1)
	mgr.taskMu.RUnlock()

	go func() {
		defer mgr.wg.Done()

		mgr.count.Add(1)
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task: terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		close(started)
		body(ctx)
	}()

	select {
	case <-started:
		return nil
	case <-time.After(startTimeout):
		return fmt.Errorf("task: timeout waiting for %s to start", name)
	}
}

func (mgr *Manager) runLoop(ctx context.Context, name string, taskFunc Func) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !mgr.callWithRecover(name, taskFunc) {
				return
			}
		}
	}
}

// callWithRecover calls fn with panic protection; a panic counts as false.
func (mgr *Manager) callWithRecover(name string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("task: panic", "name", name, "panic", r)
			ok = false
		}
	}()

	return fn()
}
