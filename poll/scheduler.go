// Package poll runs a fallible refresh function periodically and hands every
// successful result to an observer.
//
// A failing refresh never stops the Scheduler: it logs the error and switches to
// a fixed backoff interval until the next success, so an unresponsive device is
// polled more slowly instead of silently dropping out.
//
//	s, _ := poll.NewScheduler[float64]()
//	_ = s.Start(100*time.Millisecond, func() (float64, error) {
//	    return session.GetPosition(0, 50*time.Millisecond)
//	}, func(pos float64) {
//	    fmt.Println(pos)
//	})
//	defer s.Stop()
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-apt/internal/pool"
	"github.com/arloliu/go-apt/internal/task"
	"github.com/arloliu/go-apt/logger"
)

// DefaultBackoffInterval is the delay between ticks after a failed refresh.
const DefaultBackoffInterval = 3 * time.Second

var (
	// ErrInvalidArgument indicates an invalid interval, option or nil refresh function.
	ErrInvalidArgument = errors.New("poll: invalid argument")

	errPanic = errors.New("poll: panic in callback")
)

// RefreshFunc produces a new value. It should bound its own run time since a
// running refresh is never interrupted.
type RefreshFunc[T any] func() (T, error)

// UpdateFunc receives the value of every successful refresh. It runs on the
// scheduler goroutine and delays the next tick while it runs.
type UpdateFunc[T any] func(value T)

// Scheduler calls a RefreshFunc periodically.
//
// The state machine is Stopped -> Running -> Stopped. Start and Stop are
// idempotent and safe for concurrent use, but must not be called from inside the
// refresh or update callbacks: Stop waits for the running tick to finish.
type Scheduler[T any] struct {
	name    string
	backoff time.Duration
	logger  logger.Logger
	metrics Metrics
	taskMgr *task.Manager

	mu       sync.Mutex // serializes Start and Stop
	running  atomic.Bool
	interval atomic.Int64
	current  atomic.Int64
	failures atomic.Int64
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler[T any](opts ...Option) (*Scheduler[T], error) {
	cfg := config{
		ctx:     context.Background(),
		name:    "poll",
		backoff: DefaultBackoffInterval,
		logger:  logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}

	l := cfg.logger.With("scheduler", cfg.name)

	return &Scheduler[T]{
		name:    cfg.name,
		backoff: cfg.backoff,
		logger:  l,
		taskMgr: task.NewManager(cfg.ctx, l),
	}, nil
}

// Start begins polling. The first tick runs after interval.
//
// onUpdate may be nil. Calling Start on a running Scheduler does nothing and
// returns nil.
func (s *Scheduler[T]) Start(interval time.Duration, refresh RefreshFunc[T], onUpdate UpdateFunc[T]) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval %v must be positive", ErrInvalidArgument, interval)
	}
	if refresh == nil {
		return fmt.Errorf("%w: refresh function is nil", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}

	s.interval.Store(int64(interval))
	s.current.Store(int64(interval))
	s.failures.Store(0)

	ctx := s.taskMgr.Context()
	err := s.taskMgr.Start(s.name, func() bool {
		if !pool.Sleep(ctx, s.Interval()) {
			return false
		}

		s.tick(refresh, onUpdate)

		return true
	})
	if err != nil {
		return err
	}

	s.running.Store(true)
	s.logger.Debug("poll: started", "interval", interval)

	return nil
}

// Stop ends polling. When Stop returns no refresh is running and none will start.
// Calling Stop on a stopped Scheduler does nothing.
func (s *Scheduler[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}

	s.taskMgr.Stop()
	s.taskMgr.Wait()
	s.running.Store(false)

	s.logger.Debug("poll: stopped", "failures", s.ConsecutiveFailures())
}

// IsRunning reports whether the Scheduler is running.
func (s *Scheduler[T]) IsRunning() bool {
	return s.running.Load()
}

// Interval returns the delay before the next tick: the configured interval, or
// the backoff interval after a failure.
func (s *Scheduler[T]) Interval() time.Duration {
	return time.Duration(s.current.Load())
}

// ConsecutiveFailures returns the number of failed ticks since the last success.
func (s *Scheduler[T]) ConsecutiveFailures() int {
	return int(s.failures.Load())
}

// GetMetrics returns the scheduler metrics.
func (s *Scheduler[T]) GetMetrics() *Metrics {
	return &s.metrics
}

func (s *Scheduler[T]) tick(refresh RefreshFunc[T], onUpdate UpdateFunc[T]) {
	s.metrics.incTickCount()

	value, err := s.callRefresh(refresh)
	if err == nil && onUpdate != nil {
		err = s.callUpdate(onUpdate, value)
	}

	if err != nil {
		failures := s.failures.Add(1)
		s.current.Store(int64(s.backoff))
		s.metrics.incFailureCount()

		s.logger.Warn("poll: refresh failed, throttling refresh rate",
			"error", err,
			"failures", failures,
			"interval", s.backoff)

		return
	}

	if s.failures.Swap(0) > 0 {
		s.logger.Info("poll: refresh recovered", "interval", time.Duration(s.interval.Load()))
	}
	s.current.Store(s.interval.Load())
	s.metrics.incSuccessCount()
}

func (s *Scheduler[T]) callRefresh(refresh RefreshFunc[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.incPanicCount()
			err = fmt.Errorf("%w: refresh: %v", errPanic, r)
		}
	}()

	return refresh()
}

func (s *Scheduler[T]) callUpdate(onUpdate UpdateFunc[T], value T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.incPanicCount()
			err = fmt.Errorf("%w: update: %v", errPanic, r)
		}
	}()

	onUpdate(value)

	return nil
}
