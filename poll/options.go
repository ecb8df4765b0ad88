package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/go-apt/logger"
)

type config struct {
	ctx     context.Context
	name    string
	backoff time.Duration
	logger  logger.Logger
}

// Option configures a Scheduler.
type Option interface {
	apply(cfg *config) error
}

type optFunc func(cfg *config) error

func (f optFunc) apply(cfg *config) error {
	return f(cfg)
}

// WithBackoffInterval sets the delay between ticks after a failed refresh.
// The default is DefaultBackoffInterval.
func WithBackoffInterval(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return fmt.Errorf("%w: backoff interval %v must be positive", ErrInvalidArgument, d)
		}

		cfg.backoff = d

		return nil
	})
}

// WithName sets the scheduler name used in logs.
func WithName(name string) Option {
	return optFunc(func(cfg *config) error {
		if name == "" {
			return fmt.Errorf("%w: name is empty", ErrInvalidArgument)
		}

		cfg.name = name

		return nil
	})
}

// WithContext sets the parent context. Polling ends when it is done, as if Stop
// had been called, but IsRunning keeps reporting true until Stop.
func WithContext(ctx context.Context) Option {
	return optFunc(func(cfg *config) error {
		if ctx == nil {
			return fmt.Errorf("%w: context is nil", ErrInvalidArgument)
		}

		cfg.ctx = ctx

		return nil
	})
}

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidArgument)
		}

		cfg.logger = l

		return nil
	})
}
