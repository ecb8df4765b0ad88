package aptsim

import (
	"fmt"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/logger"
)

// Default simulator values, modeled on a three-channel NanoMax stage controller.
const (
	DefaultChannels       = 3
	DefaultSerialNumber   = 71000001
	DefaultModel          = "BPC303"
	DefaultMaxTravel      = 200 // 20 um, in units of 100 nm
	DefaultUpdateInterval = 100 * time.Millisecond
	defaultOutQueueSize   = 64
)

type deviceConfig struct {
	channels       int
	source         apt.Endpoint
	serialNumber   uint32
	model          string
	firmware       [3]byte
	voltageLimit   uint16
	maxTravel      uint16
	updateInterval time.Duration
	logger         logger.Logger
}

// Option configures a simulated Device.
type Option interface {
	apply(cfg *deviceConfig) error
}

type optFunc func(cfg *deviceConfig) error

func (f optFunc) apply(cfg *deviceConfig) error {
	return f(cfg)
}

// WithChannels sets the number of channels.
func WithChannels(n int) Option {
	return optFunc(func(cfg *deviceConfig) error {
		if n < 1 || n > 255 {
			return fmt.Errorf("aptsim: channel count %d out of range [1, 255]", n)
		}

		cfg.channels = n

		return nil
	})
}

// WithSource sets the endpoint the simulator answers from.
func WithSource(source apt.Endpoint) Option {
	return optFunc(func(cfg *deviceConfig) error {
		cfg.source = source
		return nil
	})
}

// WithSerialNumber sets the serial number reported in HW_GET_INFO.
func WithSerialNumber(sn uint32) Option {
	return optFunc(func(cfg *deviceConfig) error {
		cfg.serialNumber = sn
		return nil
	})
}

// WithModel sets the model reported in HW_GET_INFO; at most 8 characters.
func WithModel(model string) Option {
	return optFunc(func(cfg *deviceConfig) error {
		if len(model) > 8 {
			return fmt.Errorf("aptsim: model %q longer than 8 characters", model)
		}

		cfg.model = model

		return nil
	})
}

// WithVoltageLimit sets the voltage limit code reported in the TPZ IO settings.
func WithVoltageLimit(code uint16) Option {
	return optFunc(func(cfg *deviceConfig) error {
		switch code {
		case apt.VoltageLimit75V, apt.VoltageLimit100V, apt.VoltageLimit150V:
			cfg.voltageLimit = code
			return nil
		default:
			return fmt.Errorf("aptsim: invalid voltage limit code %d", code)
		}
	})
}

// WithMaxTravel sets the max travel of every channel in units of 100 nm.
func WithMaxTravel(travel uint16) Option {
	return optFunc(func(cfg *deviceConfig) error {
		cfg.maxTravel = travel
		return nil
	})
}

// WithUpdateInterval sets the period of automatic status updates.
func WithUpdateInterval(d time.Duration) Option {
	return optFunc(func(cfg *deviceConfig) error {
		if d <= 0 {
			return fmt.Errorf("aptsim: update interval %v must be positive", d)
		}

		cfg.updateInterval = d

		return nil
	})
}

// WithLogger sets the simulator logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *deviceConfig) error {
		if l == nil {
			return fmt.Errorf("aptsim: logger is nil")
		}

		cfg.logger = l

		return nil
	})
}
