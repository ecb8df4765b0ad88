package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-apt/logger"
	"github.com/arloliu/go-apt/piezo"
)

const maxReplyTimeoutMs = int(piezo.MaxQueryTimeout / time.Millisecond)

// Validate checks the configuration without modifying it. Zero values that
// Normalize replaces with defaults are accepted.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if cfg.PollIntervalMs < 0 {
		return fmt.Errorf("poll_interval_ms %d must not be negative", cfg.PollIntervalMs)
	}
	if cfg.BackoffIntervalMs < 0 {
		return fmt.Errorf("backoff_interval_ms %d must not be negative", cfg.BackoffIntervalMs)
	}

	if len(cfg.Devices) == 0 {
		return errors.New("no devices defined")
	}

	devices := make(map[string]*DeviceConfig, len(cfg.Devices))
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.ID == "" {
			return fmt.Errorf("device #%d: id is empty", i)
		}
		if _, dup := devices[d.ID]; dup {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		devices[d.ID] = d

		if err := validateDevice(d); err != nil {
			return err
		}
	}

	if len(cfg.Axes) == 0 {
		return errors.New("no axes defined")
	}

	axes := make(map[string]struct{}, len(cfg.Axes))
	for i, a := range cfg.Axes {
		if a.Name == "" {
			return fmt.Errorf("axis #%d: name is empty", i)
		}
		if _, dup := axes[a.Name]; dup {
			return fmt.Errorf("axis %q: duplicate name", a.Name)
		}
		axes[a.Name] = struct{}{}

		d, ok := devices[a.Device]
		if !ok {
			return fmt.Errorf("axis %q: unknown device %q", a.Name, a.Device)
		}
		if !d.hasChannel(a.Channel) {
			return fmt.Errorf("axis %q: device %q has no channel %d", a.Name, a.Device, a.Channel)
		}
	}

	return nil
}

func validateDevice(d *DeviceConfig) error {
	if d.SerialPort == "" {
		return fmt.Errorf("device %q: serial_port is empty", d.ID)
	}
	if d.Baud < 0 {
		return fmt.Errorf("device %q: invalid baud %d", d.ID, d.Baud)
	}
	if d.ReplyTimeoutMs < 0 || d.ReplyTimeoutMs > maxReplyTimeoutMs {
		return fmt.Errorf("device %q: reply_timeout_ms %d out of range [0, %d]",
			d.ID, d.ReplyTimeoutMs, maxReplyTimeoutMs)
	}

	seen := make(map[int]struct{}, len(d.Channels))
	for _, ch := range d.Channels {
		if ch.Channel < 0 || ch.Channel >= piezo.MaxChannelCount {
			return fmt.Errorf("device %q: channel %d out of range [0, %d)",
				d.ID, ch.Channel, piezo.MaxChannelCount)
		}
		if _, dup := seen[ch.Channel]; dup {
			return fmt.Errorf("device %q: duplicate channel %d", d.ID, ch.Channel)
		}
		seen[ch.Channel] = struct{}{}

		if ch.MaxVoltage < 0 {
			return fmt.Errorf("device %q channel %d: max_voltage must not be negative", d.ID, ch.Channel)
		}
		if ch.MaxTravel < 0 {
			return fmt.Errorf("device %q channel %d: max_travel must not be negative", d.ID, ch.Channel)
		}
		if ch.Mode != "" {
			if _, err := piezo.ParseControlMode(ch.Mode); err != nil {
				return fmt.Errorf("device %q channel %d: %w", d.ID, ch.Channel, err)
			}
		}
	}

	return nil
}

// hasChannel reports whether ch is managed by the device's session.
func (d *DeviceConfig) hasChannel(ch int) bool {
	if len(d.Channels) == 0 {
		return ch >= 0 && ch < piezo.DefaultChannelCount
	}

	for _, c := range d.Channels {
		if c.Channel == ch {
			return true
		}
	}

	return false
}
