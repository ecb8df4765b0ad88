// Package aptsim simulates an APT piezo controller.
//
// A Device answers the requests of a piezo.Session over any byte stream, applies
// set commands to its own channel state and, once asked with HW_START_UPDATEMSGS,
// sends periodic status updates. It is used by tests and by the example program
// when no hardware is attached.
//
//	host, dev := net.Pipe()
//	sim, _ := aptsim.NewDevice(aptsim.WithChannels(2))
//	go sim.Serve(ctx, dev)
package aptsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/internal/pool"
	"github.com/arloliu/go-apt/internal/task"
	"github.com/arloliu/go-apt/logger"
)

// ErrNotServing is returned by Inject when the device is not serving a stream.
var ErrNotServing = errors.New("aptsim: device not serving")

const maxRaw = 32767

type channelState struct {
	enabled byte
	mode    byte
	volts   int16
	pos     uint16
	travel  uint16
}

// Device is a simulated piezo controller.
type Device struct {
	cfg deviceConfig

	mu       sync.Mutex
	channels []channelState
	out      chan *apt.Message
	received map[apt.MsgID]int

	muted   atomic.Bool
	updates atomic.Bool
	acks    atomic.Uint64
}

// NewDevice creates a simulated controller.
func NewDevice(opts ...Option) (*Device, error) {
	cfg := deviceConfig{
		channels:       DefaultChannels,
		source:         apt.EndpointUSB,
		serialNumber:   DefaultSerialNumber,
		model:          DefaultModel,
		firmware:       [3]byte{4, 0, 1},
		voltageLimit:   apt.VoltageLimit75V,
		maxTravel:      DefaultMaxTravel,
		updateInterval: DefaultUpdateInterval,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}

	d := &Device{
		cfg:      cfg,
		channels: make([]channelState, cfg.channels),
		received: make(map[apt.MsgID]int),
	}
	for i := range d.channels {
		d.channels[i] = channelState{enabled: 1, mode: 2, travel: cfg.maxTravel}
	}

	return d, nil
}

// Serve answers requests read from rw until ctx is done or rw fails.
//
// When ctx is done and rw implements io.Closer, rw is closed to unblock the
// reader. A closed stream ends Serve with a nil error.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	mgr := task.NewManager(ctx, d.cfg.logger)
	out := make(chan *apt.Message, defaultOutQueueSize)
	errCh := make(chan error, 1)

	report := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	d.mu.Lock()
	d.out = out
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.out = nil
		d.mu.Unlock()
	}()

	err := task.StartConsumer(mgr, "aptsim-writer", out, func(msg *apt.Message) bool {
		if _, err := rw.Write(msg.Encode()); err != nil {
			report(err)
			return false
		}

		return true
	})
	if err != nil {
		return err
	}

	err = mgr.Start("aptsim-reader", func() bool {
		frame, err := apt.ReadFrame(rw)
		if err != nil {
			report(err)
			return false
		}

		d.handle(frame)

		return true
	})
	if err != nil {
		mgr.Stop()
		mgr.Wait()

		return err
	}

	err = mgr.Start("aptsim-updates", func() bool {
		if !pool.Sleep(mgr.Context(), d.cfg.updateInterval) {
			return false
		}
		if d.updates.Load() {
			for i := range d.cfg.channels {
				d.reply(d.statusUpdate(i))
			}
		}

		return true
	})
	if err != nil {
		mgr.Stop()
		mgr.Wait()

		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	mgr.Stop()
	if c, ok := rw.(io.Closer); ok {
		_ = c.Close()
	}
	mgr.Wait()

	if serveErr == nil || errors.Is(serveErr, io.EOF) || errors.Is(serveErr, io.ErrClosedPipe) || errors.Is(serveErr, net.ErrClosed) {
		return nil
	}

	return serveErr
}

// Mute makes the device swallow every reply while still applying commands.
func (d *Device) Mute(muted bool) {
	d.muted.Store(muted)
}

// Inject sends msg to the host as if the controller produced it unprompted.
func (d *Device) Inject(msg *apt.Message) error {
	d.mu.Lock()
	out := d.out
	d.mu.Unlock()

	if out == nil {
		return ErrNotServing
	}

	select {
	case out <- msg:
		return nil
	default:
		return fmt.Errorf("aptsim: output queue full, drop %s", msg.ID)
	}
}

// SetMaxTravel sets the max travel of channel ch (0-based) in units of 100 nm.
func (d *Device) SetMaxTravel(ch int, travel uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch >= 0 && ch < len(d.channels) {
		d.channels[ch].travel = travel
	}
}

// SetRawPosition sets the position of channel ch as the strain gauge would report it.
func (d *Device) SetRawPosition(ch int, raw uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch >= 0 && ch < len(d.channels) {
		d.channels[ch].pos = raw
	}
}

// Raw returns the raw output voltage and position of channel ch.
func (d *Device) Raw(ch int) (volts int16, pos uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch < 0 || ch >= len(d.channels) {
		return 0, 0
	}

	return d.channels[ch].volts, d.channels[ch].pos
}

// Mode returns the control mode and enable state of channel ch as wire values.
func (d *Device) Mode(ch int) (mode byte, enabled byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch < 0 || ch >= len(d.channels) {
		return 0, 0
	}

	return d.channels[ch].mode, d.channels[ch].enabled
}

// Received returns how many messages with the given ID the device has read.
func (d *Device) Received(id apt.MsgID) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.received[id]
}

// Acks returns the number of status update acknowledgements received.
func (d *Device) Acks() uint64 {
	return d.acks.Load()
}

// UpdatesEnabled reports whether the host asked for automatic status updates.
func (d *Device) UpdatesEnabled() bool {
	return d.updates.Load()
}

func (d *Device) reply(msg *apt.Message) {
	if msg == nil || d.muted.Load() {
		return
	}

	d.mu.Lock()
	out := d.out
	d.mu.Unlock()

	if out == nil {
		return
	}

	select {
	case out <- msg:
	default:
		d.cfg.logger.Warn("aptsim: output queue full, drop reply", "msg", msg.String())
	}
}

func (d *Device) handle(frame []byte) {
	msg, err := apt.Decode(frame)
	if err != nil {
		d.cfg.logger.Warn("aptsim: drop malformed frame", "error", err)
		return
	}

	d.mu.Lock()
	d.received[msg.ID]++
	d.mu.Unlock()

	d.cfg.logger.Debug("aptsim: received", "msg", msg.String())

	switch msg.ID {
	case apt.HwReqInfo:
		d.reply(d.hwInfo())
		return
	case apt.HwStartUpdateMsgs:
		d.updates.Store(true)
		return
	case apt.HwStopUpdateMsgs:
		d.updates.Store(false)
		return
	case apt.HwDisconnect:
		d.updates.Store(false)
		return
	case apt.PzAckStatusUpdate:
		d.acks.Add(1)
		return
	}

	ch := apt.ChanIndex(msg.ChanIdent())
	if ch < 0 || ch >= d.cfg.channels {
		d.reply(apt.GetHWRichResponse(d.cfg.source, &apt.HWResponse{
			MsgIdent: uint16(msg.ID),
			Code:     1,
			Notes:    fmt.Sprintf("invalid channel %d", msg.ChanIdent()),
		}))

		return
	}

	d.reply(d.apply(ch, msg))
}

// apply executes msg on channel ch and returns the reply, if any.
func (d *Device) apply(ch int, msg *apt.Message) *apt.Message {
	ident := apt.ChanIdent(ch)
	src := d.cfg.source

	d.mu.Lock()
	defer d.mu.Unlock()

	st := &d.channels[ch]

	switch msg.ID {
	case apt.ModSetChanEnableState:
		st.enabled = msg.Param2
	case apt.ModReqChanEnableState:
		return apt.GetChanEnableState(src, ident, st.enabled)

	case apt.PzSetPosControlMode:
		st.mode = msg.Param2
	case apt.PzReqPosControlMode:
		return apt.GetPosControlMode(src, ident, st.mode)

	case apt.PzSetOutputVolts:
		if raw, ok := dataWord(msg); ok && isOpenLoop(st.mode) {
			st.volts = int16(min(raw, maxRaw)) //nolint:gosec
			// without feedback the stage follows the drive voltage
			st.pos = uint16(st.volts) //nolint:gosec
		}
	case apt.PzReqOutputVolts:
		return apt.GetOutputVolts(src, ident, st.volts)

	case apt.PzSetOutputPos:
		if raw, ok := dataWord(msg); ok && !isOpenLoop(st.mode) {
			st.pos = min(raw, maxRaw)
			st.volts = int16(st.pos) //nolint:gosec
		}
	case apt.PzReqOutputPos:
		return apt.GetOutputPos(src, ident, st.pos)

	case apt.PzReqMaxTravel:
		return apt.GetMaxTravel(src, ident, st.travel)

	case apt.PzSetZero:
		st.pos = 0

	case apt.PzReqStatusUpdate:
		return d.statusUpdateLocked(ch)

	case apt.PzReqTPZIOSettings:
		return apt.GetIOSettings(src, &apt.IOSettings{Chan: ident, VoltageLimit: d.cfg.voltageLimit})

	default:
		d.cfg.logger.Debug("aptsim: unhandled message", "msg", msg.String())
	}

	return nil
}

func (d *Device) statusUpdate(ch int) *apt.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.statusUpdateLocked(ch)
}

func (d *Device) statusUpdateLocked(ch int) *apt.Message {
	st := d.channels[ch]

	bits := apt.StatusConnected | apt.StatusStrainGaugeConn
	if !isOpenLoop(st.mode) {
		bits |= apt.StatusClosedLoop
	}

	return apt.GetStatusUpdate(d.cfg.source, &apt.StatusUpdate{
		Chan:       apt.ChanIdent(ch),
		Voltage:    st.volts,
		Position:   int16(st.pos), //nolint:gosec
		StatusBits: bits,
	})
}

func (d *Device) hwInfo() *apt.Message {
	return apt.GetHWInfo(d.cfg.source, &apt.HWInfo{
		SerialNumber: d.cfg.serialNumber,
		Model:        d.cfg.model,
		Type:         16,
		Firmware:     d.cfg.firmware,
		Notes:        "APT Piezo Simulator",
		NumChannels:  uint16(d.cfg.channels), //nolint:gosec
	})
}

func dataWord(msg *apt.Message) (uint16, bool) {
	if len(msg.Data) < 4 {
		return 0, false
	}

	return uint16(msg.Data[2]) | uint16(msg.Data[3])<<8, true
}

func isOpenLoop(mode byte) bool {
	return mode == 1 || mode == 3
}
