// Package piezo implements a session with a Thorlabs APT piezo controller.
//
// A Session owns a byte transport (usually a serial port) and runs two goroutines:
// a reader that decodes every inbound frame through a Dispatcher, and a writer that
// drains the outbound command queue. Application goroutines call the Session
// methods:
//
//   - Commands (SetControlMode, SetEnabled, SetVoltage, SetPosition, Zero) are
//     validated against the channel state, enqueued, and applied to the channel
//     state without waiting for the controller.
//   - Queries (GetPosition, GetVoltage, GetMaxTravel, GetControlMode, GetEnabled,
//     GetIOSettings, GetStatus, GetInfo) register a wait for the matching reply,
//     enqueue the request and block the caller until the reply arrives or the
//     timeout elapses.
//
// At most one query per (channel, reply kind) may be outstanding; a concurrent
// identical query fails with ErrRequestPending instead of sharing the reply.
//
// Channel values travel on the wire as raw integers in [0, MaxRaw], scaled by the
// channel's MaxVoltage (volts) or MaxTravel (micrometers).
//
// Example:
//
//	cfg, _ := piezo.NewSessionConfig(piezo.WithChannelCount(3))
//	s, _ := piezo.NewSession(ctx, port, cfg)
//	if err := s.Open(); err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.Initialize(time.Second); err != nil {
//	    return err
//	}
//	_ = s.SetPosition(0, 10.0)
//	pos, err := s.GetPosition(0, 100*time.Millisecond)
package piezo
