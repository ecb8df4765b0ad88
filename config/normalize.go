package config

import (
	"github.com/arloliu/go-apt/piezo"
	"github.com/arloliu/go-apt/serialport"
)

// Normalize fills in defaults for zero values. It must run after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.PollIntervalMs == 0 {
		cfg.PollIntervalMs = DefaultPollIntervalMs
	}
	if cfg.BackoffIntervalMs == 0 {
		cfg.BackoffIntervalMs = DefaultBackoffIntervalMs
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Baud == 0 {
			d.Baud = serialport.DefaultBaud
		}
		if d.ReplyTimeoutMs == 0 {
			d.ReplyTimeoutMs = DefaultReplyTimeoutMs
		}

		for j := range d.Channels {
			ch := &d.Channels[j]
			if ch.MaxVoltage == 0 {
				ch.MaxVoltage = piezo.DefaultMaxVoltage
			}
			if ch.Mode == "" {
				ch.Mode = piezo.DefaultInitMode.String()
			}
		}
	}
}
