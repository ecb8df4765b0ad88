// Package serialport opens the USB virtual serial port of an APT controller.
//
// The returned Port is an io.ReadWriteCloser suitable for piezo.NewSession. Its
// Read blocks until data arrives or the port is closed: the underlying read
// timeout only exists so that Close can interrupt a pending Read.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// APT controllers use 115200 baud, 8 data bits, no parity and one stop bit.
const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("serialport: port closed")

// Config holds serial port settings.
type Config struct {
	// Device is the port path, e.g. "/dev/ttyUSB0" or "COM3".
	Device string
	// Baud is the baud rate.
	Baud int
	// ReadTimeout bounds each read of the underlying port.
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings used by APT controllers for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

func (cfg *Config) validate() error {
	if cfg.Device == "" {
		return errors.New("serialport: device is empty")
	}
	if cfg.Baud <= 0 {
		return fmt.Errorf("serialport: invalid baud rate %d", cfg.Baud)
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("serialport: read timeout %v must be positive", cfg.ReadTimeout)
	}

	return nil
}

// Port is an open serial port.
type Port struct {
	name   string
	rw     io.ReadWriteCloser
	closed atomic.Bool
}

// Open opens the serial port described by cfg.
func Open(cfg *Config) (*Port, error) {
	if cfg == nil {
		return nil, errors.New("serialport: config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sp, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Device, err)
	}

	return newPort(cfg.Device, sp), nil
}

func newPort(name string, rw io.ReadWriteCloser) *Port {
	return &Port{name: name, rw: rw}
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// Read reads at least one byte, retrying the reads that end with the port timeout.
func (p *Port) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	for {
		if p.closed.Load() {
			return 0, ErrClosed
		}

		n, err := p.rw.Read(b)
		if n > 0 {
			return n, nil
		}

		// a read timeout surfaces as (0, io.EOF) or (0, nil)
		if err != nil && !errors.Is(err, io.EOF) {
			if p.closed.Load() {
				return 0, ErrClosed
			}

			return 0, err
		}
	}
}

// Write writes b to the port.
func (p *Port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}

	return p.rw.Write(b)
}

// Close closes the port; a pending Read returns ErrClosed within the read timeout.
// It is safe to call more than once.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	return p.rw.Close()
}
