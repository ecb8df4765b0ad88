// Package config loads the YAML description of a piezo stage: the controllers,
// their channels, the axes built from them and the polling intervals.
//
//	poll_interval_ms: 200
//	devices:
//	  - id: nanomax
//	    serial_port: /dev/ttyUSB0
//	    serial_number: 71000001
//	    channels:
//	      - channel: 0
//	        max_voltage: 75
//	        mode: ClosedLoop
//	axes:
//	  - name: x
//	    device: nanomax
//	    channel: 0
//
// Load and Parse run Validate and then Normalize, which fills in defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/arloliu/go-apt/logger"
	"github.com/arloliu/go-apt/piezo"
	"github.com/arloliu/go-apt/poll"
	"github.com/arloliu/go-apt/serialport"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Normalize.
const (
	DefaultPollIntervalMs    = 200
	DefaultBackoffIntervalMs = int(poll.DefaultBackoffInterval / time.Millisecond)
	DefaultReplyTimeoutMs    = 1000
)

// Config is the root of the configuration file.
type Config struct {
	LogLevel          string         `yaml:"log_level"`
	PollIntervalMs    int            `yaml:"poll_interval_ms"`
	BackoffIntervalMs int            `yaml:"backoff_interval_ms"`
	Devices           []DeviceConfig `yaml:"devices"`
	Axes              []AxisConfig   `yaml:"axes"`
}

// DeviceConfig describes one controller.
type DeviceConfig struct {
	ID             string          `yaml:"id"`
	SerialPort     string          `yaml:"serial_port"`
	Baud           int             `yaml:"baud"`
	SerialNumber   uint32          `yaml:"serial_number"` // 0 skips the check
	ReplyTimeoutMs int             `yaml:"reply_timeout_ms"`
	StatusUpdates  bool            `yaml:"status_updates"`
	Channels       []ChannelConfig `yaml:"channels"`
}

// ChannelConfig describes one channel of a controller.
type ChannelConfig struct {
	Channel    int     `yaml:"channel"` // 0-based
	MaxVoltage float64 `yaml:"max_voltage"`
	MaxTravel  float64 `yaml:"max_travel"` // 0 reads it from the controller
	Mode       string  `yaml:"mode"`
}

// AxisConfig maps a named axis to a device channel.
type AxisConfig struct {
	Name    string `yaml:"name"`
	Device  string `yaml:"device"`
	Channel int    `yaml:"channel"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes, validates and normalizes a YAML document. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	Normalize(cfg)

	return cfg, nil
}

// PollInterval returns the polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// BackoffInterval returns the polling interval used after a failed poll.
func (c *Config) BackoffInterval() time.Duration {
	return time.Duration(c.BackoffIntervalMs) * time.Millisecond
}

// Level returns the configured log level.
func (c *Config) Level() logger.Level {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// Device returns the device with the given id.
func (c *Config) Device(id string) (*DeviceConfig, bool) {
	for i := range c.Devices {
		if c.Devices[i].ID == id {
			return &c.Devices[i], true
		}
	}

	return nil, false
}

// ReplyTimeout returns the per-reply timeout.
func (d *DeviceConfig) ReplyTimeout() time.Duration {
	return time.Duration(d.ReplyTimeoutMs) * time.Millisecond
}

// ChannelCount returns the number of channels the session must manage: one more
// than the highest configured channel index, or piezo.DefaultChannelCount.
func (d *DeviceConfig) ChannelCount() int {
	if len(d.Channels) == 0 {
		return piezo.DefaultChannelCount
	}

	n := 0
	for _, ch := range d.Channels {
		n = max(n, ch.Channel+1)
	}

	return n
}

// SerialConfig returns the serial port settings of the device.
func (d *DeviceConfig) SerialConfig() *serialport.Config {
	cfg := serialport.DefaultConfig(d.SerialPort)
	cfg.Baud = d.Baud

	return cfg
}

// SessionOptions converts the device settings into piezo session options.
func (d *DeviceConfig) SessionOptions() ([]piezo.SessionOption, error) {
	channels := make([]piezo.ChannelConfig, d.ChannelCount())
	for i := range channels {
		channels[i] = piezo.DefaultChannelConfig()
	}

	for _, ch := range d.Channels {
		mode, err := piezo.ParseControlMode(ch.Mode)
		if err != nil {
			return nil, fmt.Errorf("device %q channel %d: %w", d.ID, ch.Channel, err)
		}

		channels[ch.Channel] = piezo.ChannelConfig{
			MaxVoltage: ch.MaxVoltage,
			MaxTravel:  ch.MaxTravel,
			Mode:       mode,
			Enabled:    piezo.Enabled,
		}
	}

	return []piezo.SessionOption{
		piezo.WithChannels(channels...),
		piezo.WithReplyTimeout(d.ReplyTimeout()),
		piezo.WithStatusUpdates(d.StatusUpdates),
	}, nil
}
