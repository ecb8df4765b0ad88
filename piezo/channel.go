package piezo

import (
	"fmt"
	"math"
	"sync"
)

// MaxRaw is the device value representing 100% of a channel's voltage or travel.
const MaxRaw = 32767

// ChannelState is a snapshot of one actuator channel.
//
// RawVoltage and RawPosition are in device units [0, MaxRaw]. MaxVoltage (volts)
// and MaxTravel (micrometers) scale them to physical units.
type ChannelState struct {
	ID          int // 0-based
	Mode        ControlMode
	Enabled     EnableState
	RawVoltage  int32
	RawPosition int32
	MaxVoltage  float64
	MaxTravel   float64
}

// Voltage returns the output voltage in volts.
func (s ChannelState) Voltage() float64 {
	return RawToPhysical(s.RawVoltage, s.MaxVoltage)
}

// Position returns the position in micrometers.
func (s ChannelState) Position() float64 {
	return RawToPhysical(s.RawPosition, s.MaxTravel)
}

// ClampRaw limits v to [0, MaxRaw].
func ClampRaw(v int64) int32 {
	switch {
	case v < 0:
		return 0
	case v > MaxRaw:
		return MaxRaw
	default:
		return int32(v)
	}
}

// PhysicalToRaw converts a physical value to device units:
// raw = round(MaxRaw * value / scale), clamped to [0, MaxRaw].
//
// It returns ErrInvalidArgument when value is NaN or infinite, or when scale is not
// a positive finite number.
func PhysicalToRaw(value, scale float64) (int32, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: value %v is not finite", ErrInvalidArgument, value)
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		return 0, fmt.Errorf("%w: scale %v must be positive", ErrInvalidArgument, scale)
	}

	raw := math.Round(MaxRaw * value / scale)
	switch {
	case raw < 0:
		return 0, nil
	case raw > MaxRaw:
		return MaxRaw, nil
	default:
		return int32(raw), nil
	}
}

// RawToPhysical converts device units to a physical value: raw * scale / MaxRaw.
// raw is clamped first.
func RawToPhysical(raw int32, scale float64) float64 {
	return float64(ClampRaw(int64(raw))) * scale / MaxRaw
}

// channel holds the mutable state of one actuator channel.
//
// mu guards state and is held only for short reads and writes, so the reader
// goroutine never waits on a caller. cmdMu serializes the check-then-send
// sequence of commands issued on the channel.
type channel struct {
	cmdMu sync.Mutex
	mu    sync.RWMutex
	state ChannelState
}

func newChannel(id int, cfg ChannelConfig) *channel {
	return &channel{
		state: ChannelState{
			ID:         id,
			Mode:       cfg.Mode,
			Enabled:    cfg.Enabled,
			MaxVoltage: cfg.MaxVoltage,
			MaxTravel:  cfg.MaxTravel,
		},
	}
}

func (c *channel) snapshot() ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

func (c *channel) update(fn func(st *ChannelState)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn(&c.state)
}
