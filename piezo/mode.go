package piezo

import "fmt"

// ControlMode is the position control mode of a piezo channel.
// The values are the ones used on the wire.
type ControlMode byte

const (
	// OpenLoop drives the piezo by voltage without feedback.
	OpenLoop ControlMode = 0x01
	// ClosedLoop drives the piezo to a position using strain gauge feedback.
	ClosedLoop ControlMode = 0x02
	// OpenLoopSmooth is OpenLoop with motion smoothing.
	OpenLoopSmooth ControlMode = 0x03
	// ClosedLoopSmooth is ClosedLoop with motion smoothing.
	ClosedLoopSmooth ControlMode = 0x04
)

// IsValid reports whether m is one of the four control modes.
func (m ControlMode) IsValid() bool {
	return m >= OpenLoop && m <= ClosedLoopSmooth
}

// IsOpenLoop reports whether voltage commands are accepted in mode m.
func (m ControlMode) IsOpenLoop() bool {
	return m == OpenLoop || m == OpenLoopSmooth
}

// IsClosedLoop reports whether position commands are accepted in mode m.
func (m ControlMode) IsClosedLoop() bool {
	return m == ClosedLoop || m == ClosedLoopSmooth
}

func (m ControlMode) String() string {
	switch m {
	case OpenLoop:
		return "OpenLoop"
	case ClosedLoop:
		return "ClosedLoop"
	case OpenLoopSmooth:
		return "OpenLoopSmooth"
	case ClosedLoopSmooth:
		return "ClosedLoopSmooth"
	default:
		return fmt.Sprintf("ControlMode(%d)", byte(m))
	}
}

// ParseControlMode converts a mode name (as produced by String) into a ControlMode.
func ParseControlMode(s string) (ControlMode, error) {
	for _, m := range []ControlMode{OpenLoop, ClosedLoop, OpenLoopSmooth, ClosedLoopSmooth} {
		if m.String() == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown control mode %q", ErrInvalidArgument, s)
}

// EnableState is the enable state of a channel, using the wire values.
type EnableState byte

const (
	Enabled  EnableState = 0x01
	Disabled EnableState = 0x02
)

// IsValid reports whether s is Enabled or Disabled.
func (s EnableState) IsValid() bool {
	return s == Enabled || s == Disabled
}

func (s EnableState) String() string {
	switch s {
	case Enabled:
		return "Enabled"
	case Disabled:
		return "Disabled"
	default:
		return fmt.Sprintf("EnableState(%d)", byte(s))
	}
}
