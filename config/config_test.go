package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/go-apt/logger"
	"github.com/arloliu/go-apt/piezo"
	"github.com/arloliu/go-apt/serialport"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	require := require.New(t)

	cfg, err := Load(filepath.Join("testdata", "stage.yaml"))
	require.NoError(err)

	require.Equal(logger.DebugLevel, cfg.Level())
	require.Equal(100*time.Millisecond, cfg.PollInterval())
	require.Equal(3*time.Second, cfg.BackoffInterval())

	d, ok := cfg.Device("bpc303")
	require.True(ok)
	require.Equal(serialport.DefaultBaud, d.Baud)
	require.Equal(time.Second, d.ReplyTimeout())
	require.Equal(uint32(71000001), d.SerialNumber)
	require.True(d.StatusUpdates)
	require.Equal(3, d.ChannelCount())

	require.Equal(150.0, d.Channels[0].MaxVoltage)
	require.Equal(piezo.DefaultMaxVoltage, d.Channels[1].MaxVoltage)
	require.Equal("OpenLoop", d.Channels[1].Mode)
	require.Equal("ClosedLoop", d.Channels[2].Mode)

	require.Len(cfg.Axes, 3)
	require.Equal("z", cfg.Axes[2].Name)

	_, ok = cfg.Device("missing")
	require.False(ok)

	serial := d.SerialConfig()
	require.Equal("/dev/ttyUSB0", serial.Device)
	require.Equal(serialport.DefaultBaud, serial.Baud)
	require.Equal(serialport.DefaultReadTimeout, serial.ReadTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(`
devices:
  - id: a
    serial_port: /dev/ttyUSB0
    baudrate: 9600
axes:
  - {name: x, device: a, channel: 0}
`))
	require.Error(t, err)
}

func TestDeviceConfig_SessionOptions(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse([]byte(`
devices:
  - id: a
    serial_port: /dev/ttyUSB0
    reply_timeout_ms: 250
    channels:
      - {channel: 2, max_voltage: 100, max_travel: 300, mode: OpenLoopSmooth}
axes:
  - {name: x, device: a, channel: 2}
`))
	require.NoError(err)

	d, _ := cfg.Device("a")
	opts, err := d.SessionOptions()
	require.NoError(err)

	scfg, err := piezo.NewSessionConfig(opts...)
	require.NoError(err)
	require.Equal(250*time.Millisecond, scfg.ReplyTimeout())
	require.False(scfg.StatusUpdates())

	channels := scfg.Channels()
	require.Len(channels, 3)
	// unlisted channels below the highest index get defaults
	require.Equal(piezo.DefaultChannelConfig(), channels[0])
	require.Equal(piezo.DefaultChannelConfig(), channels[1])
	require.Equal(piezo.ChannelConfig{
		MaxVoltage: 100,
		MaxTravel:  300,
		Mode:       piezo.OpenLoopSmooth,
		Enabled:    piezo.Enabled,
	}, channels[2])
}

func TestDeviceConfig_DefaultChannels(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse([]byte(`
devices:
  - {id: a, serial_port: COM3}
axes:
  - {name: x, device: a, channel: 1}
`))
	require.NoError(err)
	require.Equal(DefaultPollIntervalMs, cfg.PollIntervalMs)
	require.Equal(logger.InfoLevel, cfg.Level())

	d, _ := cfg.Device("a")
	require.Equal(piezo.DefaultChannelCount, d.ChannelCount())

	opts, err := d.SessionOptions()
	require.NoError(err)
	scfg, err := piezo.NewSessionConfig(opts...)
	require.NoError(err)
	require.Len(scfg.Channels(), piezo.DefaultChannelCount)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Devices: []DeviceConfig{{
				ID:         "a",
				SerialPort: "/dev/ttyUSB0",
				Channels:   []ChannelConfig{{Channel: 0}, {Channel: 1}},
			}},
			Axes: []AxisConfig{{Name: "x", Device: "a", Channel: 0}},
		}
	}

	require.NoError(t, Validate(valid()))
	require.Error(t, Validate(nil))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"negative poll", func(c *Config) { c.PollIntervalMs = -1 }},
		{"negative backoff", func(c *Config) { c.BackoffIntervalMs = -1 }},
		{"no devices", func(c *Config) { c.Devices = nil }},
		{"empty device id", func(c *Config) { c.Devices[0].ID = "" }},
		{"duplicate device", func(c *Config) { c.Devices = append(c.Devices, c.Devices[0]) }},
		{"empty serial port", func(c *Config) { c.Devices[0].SerialPort = "" }},
		{"negative baud", func(c *Config) { c.Devices[0].Baud = -9600 }},
		{"reply timeout too long", func(c *Config) { c.Devices[0].ReplyTimeoutMs = 60001 }},
		{"negative reply timeout", func(c *Config) { c.Devices[0].ReplyTimeoutMs = -1 }},
		{"negative channel", func(c *Config) { c.Devices[0].Channels[0].Channel = -1 }},
		{"channel too high", func(c *Config) { c.Devices[0].Channels[1].Channel = piezo.MaxChannelCount }},
		{"duplicate channel", func(c *Config) { c.Devices[0].Channels[1].Channel = 0 }},
		{"negative voltage", func(c *Config) { c.Devices[0].Channels[0].MaxVoltage = -1 }},
		{"negative travel", func(c *Config) { c.Devices[0].Channels[0].MaxTravel = -1 }},
		{"bad mode", func(c *Config) { c.Devices[0].Channels[0].Mode = "closed" }},
		{"no axes", func(c *Config) { c.Axes = nil }},
		{"empty axis name", func(c *Config) { c.Axes[0].Name = "" }},
		{"duplicate axis", func(c *Config) { c.Axes = append(c.Axes, c.Axes[0]) }},
		{"unknown device", func(c *Config) { c.Axes[0].Device = "b" }},
		{"undeclared channel", func(c *Config) { c.Axes[0].Channel = 2 }},
		{"default channel out of range", func(c *Config) {
			c.Devices[0].Channels = nil
			c.Axes[0].Channel = piezo.DefaultChannelCount
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := &Config{
		Devices: []DeviceConfig{{ID: "a", SerialPort: "COM1", Channels: []ChannelConfig{{Channel: 0}}}},
		Axes:    []AxisConfig{{Name: "x", Device: "a"}},
	}

	require.NoError(t, Validate(cfg))
	require.Zero(t, cfg.PollIntervalMs)
	require.Zero(t, cfg.Devices[0].Baud)
	require.Empty(t, cfg.Devices[0].Channels[0].Mode)

	Normalize(cfg)
	require.Equal(t, DefaultBackoffIntervalMs, cfg.BackoffIntervalMs)
	require.Equal(t, "ClosedLoop", cfg.Devices[0].Channels[0].Mode)

	Normalize(nil)
}
