package piezo

import (
	"fmt"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/logger"
)

// Default session values.
const (
	DefaultChannelCount     = 2
	DefaultMaxVoltage       = 75.0 // volts
	DefaultReplyTimeout     = 10 * time.Second
	DefaultSendTimeout      = 3 * time.Second
	DefaultCloseTimeout     = 3 * time.Second
	DefaultSenderQueueSize  = 16
	DefaultInitMode         = ClosedLoop
	MaxQueryTimeout         = 60 * time.Second
	MaxChannelCount         = 16
	MaxSenderQueueSize      = 1024
	minSendOrCloseTimeout   = time.Millisecond
	maxSendOrCloseTimeout   = 60 * time.Second
	defaultReaderBufferSize = 4096
)

// ChannelConfig is the initial state of one channel.
//
// MaxTravel may be left at zero; Initialize reads it from the controller.
type ChannelConfig struct {
	// MaxVoltage is the output voltage corresponding to MaxRaw, in volts.
	MaxVoltage float64
	// MaxTravel is the travel corresponding to MaxRaw, in micrometers.
	MaxTravel float64
	// Mode is the control mode set by Initialize.
	Mode ControlMode
	// Enabled is the enable state set by Initialize.
	Enabled EnableState
}

// DefaultChannelConfig returns the configuration used for channels without an
// explicit ChannelConfig.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		MaxVoltage: DefaultMaxVoltage,
		Mode:       DefaultInitMode,
		Enabled:    Enabled,
	}
}

func (c ChannelConfig) validate() error {
	if !(c.MaxVoltage > 0) {
		return fmt.Errorf("%w: max voltage %v must be positive", ErrInvalidArgument, c.MaxVoltage)
	}
	if c.MaxTravel < 0 {
		return fmt.Errorf("%w: max travel %v must not be negative", ErrInvalidArgument, c.MaxTravel)
	}
	if !c.Mode.IsValid() {
		return fmt.Errorf("%w: invalid control mode %v", ErrInvalidArgument, c.Mode)
	}
	if !c.Enabled.IsValid() {
		return fmt.Errorf("%w: invalid enable state %v", ErrInvalidArgument, c.Enabled)
	}

	return nil
}

// SessionConfig holds the configuration of a piezo Session.
type SessionConfig struct {
	channels        []ChannelConfig
	dest            apt.Endpoint
	replyTimeout    time.Duration
	sendTimeout     time.Duration
	closeTimeout    time.Duration
	senderQueueSize int
	statusUpdates   bool
	unsolicited     EventHandler
	logger          logger.Logger
}

// NewSessionConfig creates a SessionConfig with default values, then applies opts
// in order.
func NewSessionConfig(opts ...SessionOption) (*SessionConfig, error) {
	cfg := &SessionConfig{
		dest:            apt.EndpointUSB,
		replyTimeout:    DefaultReplyTimeout,
		sendTimeout:     DefaultSendTimeout,
		closeTimeout:    DefaultCloseTimeout,
		senderQueueSize: DefaultSenderQueueSize,
		logger:          logger.GetLogger(),
	}
	for i := 0; i < DefaultChannelCount; i++ {
		cfg.channels = append(cfg.channels, DefaultChannelConfig())
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Channels returns a copy of the channel configurations.
func (cfg *SessionConfig) Channels() []ChannelConfig {
	return append([]ChannelConfig(nil), cfg.channels...)
}

// Destination returns the endpoint commands are addressed to.
func (cfg *SessionConfig) Destination() apt.Endpoint { return cfg.dest }

// ReplyTimeout returns the timeout used by Initialize for each reply.
func (cfg *SessionConfig) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// SendTimeout returns how long a command may wait for room in the sender queue.
func (cfg *SessionConfig) SendTimeout() time.Duration { return cfg.sendTimeout }

// CloseTimeout returns how long Close waits for the session tasks to end.
func (cfg *SessionConfig) CloseTimeout() time.Duration { return cfg.closeTimeout }

// SenderQueueSize returns the capacity of the outbound command queue.
func (cfg *SessionConfig) SenderQueueSize() int { return cfg.senderQueueSize }

// StatusUpdates reports whether the session requests automatic status updates.
func (cfg *SessionConfig) StatusUpdates() bool { return cfg.statusUpdates }

// Logger returns the session logger.
func (cfg *SessionConfig) Logger() logger.Logger { return cfg.logger }

// SessionOption configures a SessionConfig.
type SessionOption interface {
	apply(cfg *SessionConfig) error
}

type sessionOptFunc func(cfg *SessionConfig) error

func (f sessionOptFunc) apply(cfg *SessionConfig) error {
	return f(cfg)
}

// WithChannelCount sets the number of channels, each with DefaultChannelConfig.
func WithChannelCount(n int) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if n < 1 || n > MaxChannelCount {
			return fmt.Errorf("%w: channel count %d out of range [1, %d]", ErrInvalidArgument, n, MaxChannelCount)
		}

		cfg.channels = make([]ChannelConfig, n)
		for i := range cfg.channels {
			cfg.channels[i] = DefaultChannelConfig()
		}

		return nil
	})
}

// WithChannels sets the channel configurations; channel i uses channels[i].
func WithChannels(channels ...ChannelConfig) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if len(channels) < 1 || len(channels) > MaxChannelCount {
			return fmt.Errorf("%w: channel count %d out of range [1, %d]", ErrInvalidArgument, len(channels), MaxChannelCount)
		}

		for i, c := range channels {
			if err := c.validate(); err != nil {
				return fmt.Errorf("channel %d: %w", i, err)
			}
		}

		cfg.channels = append([]ChannelConfig(nil), channels...)

		return nil
	})
}

// WithDestination sets the endpoint commands are addressed to.
// The default is apt.EndpointUSB, used by single-bay USB controllers.
func WithDestination(dest apt.Endpoint) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if dest == apt.EndpointHost {
			return fmt.Errorf("%w: destination must not be the host endpoint", ErrInvalidArgument)
		}

		cfg.dest = dest

		return nil
	})
}

// WithReplyTimeout sets the per-reply timeout used by Initialize.
func WithReplyTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if err := validateQueryTimeout(d); err != nil {
			return err
		}

		cfg.replyTimeout = d

		return nil
	})
}

// WithSendTimeout sets how long a command may wait for room in the sender queue.
func WithSendTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < minSendOrCloseTimeout || d > maxSendOrCloseTimeout {
			return fmt.Errorf("%w: send timeout %v out of range [%v, %v]",
				ErrInvalidArgument, d, minSendOrCloseTimeout, maxSendOrCloseTimeout)
		}

		cfg.sendTimeout = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the session tasks to end.
func WithCloseTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < minSendOrCloseTimeout || d > maxSendOrCloseTimeout {
			return fmt.Errorf("%w: close timeout %v out of range [%v, %v]",
				ErrInvalidArgument, d, minSendOrCloseTimeout, maxSendOrCloseTimeout)
		}

		cfg.closeTimeout = d

		return nil
	})
}

// WithSenderQueueSize sets the capacity of the outbound command queue.
func WithSenderQueueSize(size int) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if size < 1 || size > MaxSenderQueueSize {
			return fmt.Errorf("%w: sender queue size %d out of range [1, %d]", ErrInvalidArgument, size, MaxSenderQueueSize)
		}

		cfg.senderQueueSize = size

		return nil
	})
}

// WithStatusUpdates enables automatic status updates. The session sends
// HW_START_UPDATEMSGS on Open and acknowledges every status update it receives.
func WithStatusUpdates(enabled bool) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		cfg.statusUpdates = enabled
		return nil
	})
}

// WithUnsolicitedHandler sets a handler for messages no caller waited for, such as
// automatic status updates and device error reports.
// The handler runs on the reader goroutine and must not block.
func WithUnsolicitedHandler(h EventHandler) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		cfg.unsolicited = h
		return nil
	})
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if l == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidArgument)
		}

		cfg.logger = l

		return nil
	})
}

func validateQueryTimeout(d time.Duration) error {
	if d <= 0 || d > MaxQueryTimeout {
		return fmt.Errorf("%w: timeout %v out of range (0, %v]", ErrInvalidArgument, d, MaxQueryTimeout)
	}

	return nil
}
