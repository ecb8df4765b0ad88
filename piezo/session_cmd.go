package piezo

import (
	"fmt"
	"time"

	"github.com/arloliu/go-apt/apt"
)

// SetControlMode sets the control mode of channel ch.
//
// The controller does not acknowledge the command; the channel state is updated
// once the command is enqueued.
func (s *Session) SetControlMode(ch int, mode ControlMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: invalid control mode %v", ErrInvalidArgument, mode)
	}

	c, err := s.channel(ch)
	if err != nil {
		return err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := s.send(apt.SetPosControlMode(s.cfg.dest, s.ident(ch), byte(mode))); err != nil {
		return err
	}

	c.update(func(st *ChannelState) { st.Mode = mode })
	s.logger.Debug("piezo: set control mode", "channel", ch, "mode", mode.String())

	return nil
}

// SetEnabled enables or disables channel ch.
func (s *Session) SetEnabled(ch int, state EnableState) error {
	if !state.IsValid() {
		return fmt.Errorf("%w: invalid enable state %v", ErrInvalidArgument, state)
	}

	c, err := s.channel(ch)
	if err != nil {
		return err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := s.send(apt.SetChanEnableState(s.cfg.dest, s.ident(ch), byte(state))); err != nil {
		return err
	}

	c.update(func(st *ChannelState) { st.Enabled = state })
	s.logger.Debug("piezo: set enable state", "channel", ch, "state", state.String())

	return nil
}

// SetVoltage sets the output voltage of channel ch in volts.
//
// The channel must be enabled and in an open-loop mode. Values outside
// [0, MaxVoltage] are clamped.
func (s *Session) SetVoltage(ch int, volts float64) error {
	c, err := s.channel(ch)
	if err != nil {
		return err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	st := c.snapshot()
	if !st.Mode.IsOpenLoop() {
		return fmt.Errorf("%w: set voltage on channel %d in %s", ErrWrongMode, ch, st.Mode)
	}
	if st.Enabled != Enabled {
		return fmt.Errorf("%w: channel %d", ErrChannelDisabled, ch)
	}

	raw, err := PhysicalToRaw(volts, st.MaxVoltage)
	if err != nil {
		return err
	}

	if err := s.send(apt.SetOutputVolts(s.cfg.dest, s.ident(ch), int16(raw))); err != nil { //nolint:gosec
		return err
	}

	c.update(func(st *ChannelState) { st.RawVoltage = raw })
	s.logger.Debug("piezo: set voltage", "channel", ch, "volts", volts, "raw", raw)

	return nil
}

// SetPosition sets the position of channel ch in micrometers.
//
// The channel must be enabled and in a closed-loop mode, and its max travel must
// be known. Values outside [0, MaxTravel] are clamped.
func (s *Session) SetPosition(ch int, microns float64) error {
	c, err := s.channel(ch)
	if err != nil {
		return err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	st := c.snapshot()
	if !st.Mode.IsClosedLoop() {
		return fmt.Errorf("%w: set position on channel %d in %s", ErrWrongMode, ch, st.Mode)
	}
	if st.Enabled != Enabled {
		return fmt.Errorf("%w: channel %d", ErrChannelDisabled, ch)
	}

	raw, err := PhysicalToRaw(microns, st.MaxTravel)
	if err != nil {
		return err
	}

	if err := s.send(apt.SetOutputPos(s.cfg.dest, s.ident(ch), uint16(raw))); err != nil { //nolint:gosec
		return err
	}

	c.update(func(st *ChannelState) { st.RawPosition = raw })
	s.logger.Debug("piezo: set position", "channel", ch, "microns", microns, "raw", raw)

	return nil
}

// Zero makes the current position of channel ch the zero reference.
// The controller reports positions relative to it from then on.
func (s *Session) Zero(ch int) error {
	c, err := s.channel(ch)
	if err != nil {
		return err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := s.send(apt.SetZero(s.cfg.dest, s.ident(ch))); err != nil {
		return err
	}

	c.update(func(st *ChannelState) { st.RawPosition = 0 })
	s.logger.Debug("piezo: zero", "channel", ch)

	return nil
}

// SetMaxVoltage overrides the voltage scale of channel ch. Nothing is sent to
// the controller.
func (s *Session) SetMaxVoltage(ch int, volts float64) error {
	c, err := s.channel(ch)
	if err != nil {
		return err
	}

	if !(volts > 0) {
		return fmt.Errorf("%w: max voltage %v must be positive", ErrInvalidArgument, volts)
	}

	c.update(func(st *ChannelState) { st.MaxVoltage = volts })

	return nil
}

// Initialize brings every channel into its configured state: it reads the
// voltage limit, enables the channel, zeroes it, sets the control mode and reads
// the max travel. timeout applies to each reply.
func (s *Session) Initialize(timeout time.Duration) error {
	if err := validateQueryTimeout(timeout); err != nil {
		return err
	}

	for ch, cc := range s.cfg.channels {
		if _, err := s.GetIOSettings(ch, timeout); err != nil {
			return fmt.Errorf("initialize channel %d: %w", ch, err)
		}
		if err := s.SetEnabled(ch, cc.Enabled); err != nil {
			return fmt.Errorf("initialize channel %d: %w", ch, err)
		}
		if err := s.Zero(ch); err != nil {
			return fmt.Errorf("initialize channel %d: %w", ch, err)
		}
		if err := s.SetControlMode(ch, cc.Mode); err != nil {
			return fmt.Errorf("initialize channel %d: %w", ch, err)
		}
	}

	for ch := range s.cfg.channels {
		if _, err := s.GetMaxTravel(ch, timeout); err != nil {
			return fmt.Errorf("initialize channel %d: %w", ch, err)
		}
	}

	s.logger.Info("piezo: session initialized", "channels", len(s.channels))

	return nil
}
