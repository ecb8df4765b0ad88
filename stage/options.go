package stage

import (
	"fmt"
	"io"

	"github.com/arloliu/go-apt/logger"
	"github.com/arloliu/go-apt/piezo"
)

type options struct {
	logger     logger.Logger
	transports map[string]io.ReadWriteCloser
	sessionOpt []piezo.SessionOption
}

// Option configures a Stage.
type Option interface {
	apply(opts *options) error
}

type optFunc func(opts *options) error

func (f optFunc) apply(opts *options) error {
	return f(opts)
}

// WithLogger sets the logger of the stage and of its sessions.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(opts *options) error {
		if l == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidArgument)
		}
		opts.logger = l

		return nil
	})
}

// WithTransport makes the stage talk to device id over rw instead of opening
// its serial port. The stage takes ownership of rw and closes it in OnStop.
func WithTransport(id string, rw io.ReadWriteCloser) Option {
	return optFunc(func(opts *options) error {
		if id == "" || rw == nil {
			return fmt.Errorf("%w: transport needs a device id and a port", ErrInvalidArgument)
		}
		if opts.transports == nil {
			opts.transports = make(map[string]io.ReadWriteCloser)
		}
		opts.transports[id] = rw

		return nil
	})
}

// WithSessionOptions appends options to the session configuration of every
// device, after the ones derived from the configuration file.
func WithSessionOptions(sessionOpts ...piezo.SessionOption) Option {
	return optFunc(func(opts *options) error {
		opts.sessionOpt = append(opts.sessionOpt, sessionOpts...)
		return nil
	})
}
