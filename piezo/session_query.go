package piezo

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-apt/apt"
)

// query registers a wait for the reply to req, enqueues req and blocks until the
// reply arrives or timeout elapses. ch is DeviceChannel for device-level requests.
//
// On timeout the channel state is left as it was.
func (s *Session) query(ch int, req *apt.Message, timeout time.Duration) (Event, error) {
	if err := validateQueryTimeout(timeout); err != nil {
		return Event{}, err
	}
	if !s.opState.IsOpened() {
		return Event{}, ErrUnavailable
	}

	kind, ok := apt.ReplyOf(req.ID)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s has no reply", ErrInvalidArgument, req.ID)
	}

	h, err := s.dispatcher.RegisterWait(ch, kind)
	if err != nil {
		return Event{}, err
	}

	s.metrics.incInflightCount()
	defer s.metrics.decInflightCount()

	if err := s.send(req); err != nil {
		h.Cancel()
		return Event{}, err
	}

	ev, err := h.Wait(timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			s.metrics.incTimeoutCount()
			s.logger.Debug("piezo: reply timeout", "kind", kind.String(), "channel", ch, "timeout", timeout)
		}

		return Event{}, err
	}

	return ev, nil
}

// GetPosition reads the position of channel ch in micrometers.
func (s *Session) GetPosition(ch int, timeout time.Duration) (float64, error) {
	c, err := s.channel(ch)
	if err != nil {
		return 0, err
	}

	ev, err := s.query(ch, apt.ReqOutputPos(s.cfg.dest, s.ident(ch)), timeout)
	if err != nil {
		return 0, err
	}

	p, ok := ev.Payload.(*apt.OutputPos)
	if !ok {
		return 0, unexpectedPayload(ev)
	}

	return RawToPhysical(ClampRaw(int64(p.Position)), c.snapshot().MaxTravel), nil
}

// GetVoltage reads the output voltage of channel ch in volts.
func (s *Session) GetVoltage(ch int, timeout time.Duration) (float64, error) {
	c, err := s.channel(ch)
	if err != nil {
		return 0, err
	}

	ev, err := s.query(ch, apt.ReqOutputVolts(s.cfg.dest, s.ident(ch)), timeout)
	if err != nil {
		return 0, err
	}

	p, ok := ev.Payload.(*apt.OutputVolts)
	if !ok {
		return 0, unexpectedPayload(ev)
	}

	return RawToPhysical(ClampRaw(int64(p.Voltage)), c.snapshot().MaxVoltage), nil
}

// GetMaxTravel reads the max travel of channel ch in micrometers and stores it as
// the channel's position scale. A controller reporting zero travel (no strain
// gauge fitted) leaves the stored scale unchanged.
func (s *Session) GetMaxTravel(ch int, timeout time.Duration) (float64, error) {
	if _, err := s.channel(ch); err != nil {
		return 0, err
	}

	ev, err := s.query(ch, apt.ReqMaxTravel(s.cfg.dest, s.ident(ch)), timeout)
	if err != nil {
		return 0, err
	}

	p, ok := ev.Payload.(*apt.MaxTravel)
	if !ok {
		return 0, unexpectedPayload(ev)
	}

	return p.Microns(), nil
}

// GetControlMode reads the control mode of channel ch.
func (s *Session) GetControlMode(ch int, timeout time.Duration) (ControlMode, error) {
	if _, err := s.channel(ch); err != nil {
		return 0, err
	}

	ev, err := s.query(ch, apt.ReqPosControlMode(s.cfg.dest, s.ident(ch)), timeout)
	if err != nil {
		return 0, err
	}

	p, ok := ev.Payload.(*apt.PosControlMode)
	if !ok {
		return 0, unexpectedPayload(ev)
	}

	mode := ControlMode(p.Mode)
	if !mode.IsValid() {
		return 0, fmt.Errorf("%w: control mode %d", ErrProtocol, p.Mode)
	}

	return mode, nil
}

// GetEnabled reads the enable state of channel ch.
func (s *Session) GetEnabled(ch int, timeout time.Duration) (EnableState, error) {
	if _, err := s.channel(ch); err != nil {
		return 0, err
	}

	ev, err := s.query(ch, apt.ReqChanEnableState(s.cfg.dest, s.ident(ch)), timeout)
	if err != nil {
		return 0, err
	}

	p, ok := ev.Payload.(*apt.ChanEnableState)
	if !ok {
		return 0, unexpectedPayload(ev)
	}

	state := EnableState(p.State)
	if !state.IsValid() {
		return 0, fmt.Errorf("%w: enable state %d", ErrProtocol, p.State)
	}

	return state, nil
}

// GetIOSettings reads the IO settings of channel ch and stores the voltage limit
// as the channel's voltage scale.
func (s *Session) GetIOSettings(ch int, timeout time.Duration) (*apt.IOSettings, error) {
	if _, err := s.channel(ch); err != nil {
		return nil, err
	}

	ev, err := s.query(ch, apt.ReqIOSettings(s.cfg.dest, s.ident(ch)), timeout)
	if err != nil {
		return nil, err
	}

	p, ok := ev.Payload.(*apt.IOSettings)
	if !ok {
		return nil, unexpectedPayload(ev)
	}

	return p, nil
}

// GetStatus reads a status update of channel ch.
func (s *Session) GetStatus(ch int, timeout time.Duration) (Status, error) {
	c, err := s.channel(ch)
	if err != nil {
		return Status{}, err
	}

	ev, err := s.query(ch, apt.ReqStatusUpdate(s.cfg.dest, s.ident(ch)), timeout)
	if err != nil {
		return Status{}, err
	}

	p, ok := ev.Payload.(*apt.StatusUpdate)
	if !ok {
		return Status{}, unexpectedPayload(ev)
	}

	st := c.snapshot()
	status := Status{
		Channel:     ch,
		RawVoltage:  ClampRaw(int64(p.Voltage)),
		RawPosition: ClampRaw(int64(p.Position)),
		StatusBits:  p.StatusBits,
	}
	status.Voltage = RawToPhysical(status.RawVoltage, st.MaxVoltage)
	status.Position = RawToPhysical(status.RawPosition, st.MaxTravel)

	return status, nil
}

// GetInfo reads the device information: serial number, model and firmware.
func (s *Session) GetInfo(timeout time.Duration) (*apt.HWInfo, error) {
	ev, err := s.query(DeviceChannel, apt.ReqHWInfo(s.cfg.dest), timeout)
	if err != nil {
		return nil, err
	}

	info, ok := ev.Payload.(*apt.HWInfo)
	if !ok {
		return nil, unexpectedPayload(ev)
	}

	return info, nil
}

func unexpectedPayload(ev Event) error {
	return fmt.Errorf("%w: unexpected payload %T for %s", ErrProtocol, ev.Payload, ev.Kind)
}
