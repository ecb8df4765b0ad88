package piezo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/internal/pool"
	"github.com/arloliu/go-apt/internal/task"
	"github.com/arloliu/go-apt/logger"
)

// Status is the decoded content of a piezo status update.
type Status struct {
	Channel     int
	RawVoltage  int32
	RawPosition int32
	Voltage     float64 // volts
	Position    float64 // micrometers
	StatusBits  uint32
}

// Session is a connection to one APT piezo controller.
//
// Commands are enqueued to a writer goroutine and return without waiting for the
// controller. Queries register a wait with the Dispatcher, enqueue the request and
// block the calling goroutine until the reply arrives or the timeout elapses. A
// reader goroutine decodes every inbound frame and never blocks on a caller.
//
// All methods are safe for concurrent use.
type Session struct {
	pctx       context.Context
	cfg        *SessionConfig
	port       io.ReadWriteCloser
	reader     *bufio.Reader
	logger     logger.Logger
	metrics    SessionMetrics
	dispatcher *Dispatcher
	channels   []*channel

	taskMgr       *task.Manager
	senderMsgChan chan *apt.Message
	opState       atomicOpState
	used          atomic.Bool

	infoMu sync.RWMutex
	info   *apt.HWInfo
}

// NewSession creates a session over port. The session owns port and closes it in
// Close. Call Open to start exchanging messages.
func NewSession(ctx context.Context, port io.ReadWriteCloser, cfg *SessionConfig) (*Session, error) {
	if cfg == nil {
		return nil, ErrSessionConfigNil
	}
	if port == nil {
		return nil, fmt.Errorf("%w: port is nil", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Session{
		pctx:          ctx,
		cfg:           cfg,
		port:          port,
		reader:        bufio.NewReaderSize(port, defaultReaderBufferSize),
		logger:        cfg.logger.With("dest", fmt.Sprintf("%#02x", byte(cfg.dest))),
		senderMsgChan: make(chan *apt.Message, cfg.senderQueueSize),
	}

	for i, c := range cfg.channels {
		s.channels = append(s.channels, newChannel(i, c))
	}

	s.dispatcher = NewDispatcher(s.logger, &s.metrics, s.applyEvent, cfg.unsolicited)
	s.taskMgr = task.NewManager(ctx, s.logger)

	return s, nil
}

// Open starts the reader and writer goroutines.
//
// When status updates are enabled HW_START_UPDATEMSGS is the first message
// written. A session can be opened once; opening a closed session returns
// ErrUnavailable. A non-nil error leaves the session Closed.
func (s *Session) Open() error {
	if s.used.Swap(true) || !s.opState.ToOpening() {
		return fmt.Errorf("%w: session already used", ErrUnavailable)
	}

	// the queue is empty here, so this never blocks
	if s.cfg.statusUpdates {
		s.senderMsgChan <- apt.StartUpdateMsgs(s.cfg.dest)
	}

	if err := s.taskMgr.Start("reader", s.readLoop); err != nil {
		s.abortOpen()
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := task.StartConsumer(s.taskMgr, "writer", s.senderMsgChan, s.writeMsg); err != nil {
		s.abortOpen()
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if !s.opState.ToOpened() {
		s.abortOpen()
		return fmt.Errorf("%w: session closed while opening", ErrUnavailable)
	}
	s.logger.Info("piezo: session opened", "channels", len(s.channels))

	return nil
}

func (s *Session) abortOpen() {
	s.stop()
	_ = s.finish()
}

// Close stops the session goroutines, fails every pending query with
// ErrUnavailable and closes the port. It is safe to call more than once.
func (s *Session) Close() error {
	if !s.used.Swap(true) {
		return s.port.Close()
	}

	if !s.stop() && s.opState.Get() == ClosedState {
		return nil
	}

	err := s.finish()
	s.logger.Info("piezo: session closed")

	return err
}

// State returns the lifecycle state of the session.
func (s *Session) State() OpState {
	return s.opState.Get()
}

// stop moves the session to Closing and releases everything a session goroutine
// may block on. It returns false when the session was not open or opening.
func (s *Session) stop() bool {
	if !s.opState.ToClosing() {
		return false
	}

	s.dispatcher.Close()
	s.taskMgr.Stop()

	if err := s.port.Close(); err != nil {
		s.logger.Debug("piezo: close port", "error", err)
	}

	return true
}

// finish waits for the session goroutines to end and moves the session to Closed.
func (s *Session) finish() error {
	done := make(chan struct{})
	go func() {
		s.taskMgr.Wait()
		close(done)
	}()

	timer := pool.GetTimer(s.cfg.closeTimeout)
	defer pool.PutTimer(timer)

	var err error
	select {
	case <-done:
	case <-timer.C:
		err = fmt.Errorf("piezo: timeout waiting for session tasks, %d still running", s.taskMgr.TaskCount())
	}

	s.opState.ToClosed()

	return err
}

// fail closes the session after a transport error.
func (s *Session) fail(reason string, err error) {
	if s.stop() {
		s.logger.Error("piezo: session unavailable", "reason", reason, "error", err)

		go func() { _ = s.finish() }()
	}
}

func (s *Session) readLoop() bool {
	frame, err := apt.ReadFrame(s.reader)
	if err != nil {
		if !s.opState.IsActive() {
			return false
		}

		if errors.Is(err, apt.ErrInvalidLength) {
			s.metrics.incProtocolErrCount()
			s.logger.Warn("piezo: drop frame", "error", err)

			return true
		}

		s.fail("read", err)

		return false
	}

	s.dispatcher.OnMessage(frame)

	return true
}

func (s *Session) writeMsg(msg *apt.Message) bool {
	if _, err := s.port.Write(msg.Encode()); err != nil {
		s.metrics.incCommandErrCount()
		if s.opState.IsActive() {
			s.fail("write", err)
		}

		return false
	}

	s.metrics.incCommandSendCount()
	s.logger.Debug("piezo: message sent", "msg", msg.String())

	return true
}

// send enqueues msg for the writer, waiting up to the send timeout for room in the
// queue.
func (s *Session) send(msg *apt.Message) error {
	if !s.opState.IsOpened() {
		return ErrUnavailable
	}

	ctx := s.taskMgr.Context()

	select {
	case s.senderMsgChan <- msg:
		return nil
	default:
	}

	timer := pool.GetTimer(s.cfg.sendTimeout)
	defer pool.PutTimer(timer)

	select {
	case s.senderMsgChan <- msg:
		return nil
	case <-ctx.Done():
		return ErrUnavailable
	case <-timer.C:
		s.metrics.incCommandErrCount()
		return fmt.Errorf("%w: sender queue full", ErrUnavailable)
	}
}

// trySend enqueues msg without blocking; it is used from the reader goroutine.
func (s *Session) trySend(msg *apt.Message) bool {
	if !s.opState.IsOpened() {
		return false
	}

	select {
	case s.senderMsgChan <- msg:
		return true
	default:
		s.metrics.incCommandErrCount()
		s.logger.Warn("piezo: sender queue full, drop message", "msg", msg.String())

		return false
	}
}

// applyEvent updates channel and device state from a decoded message. It runs on
// the reader goroutine before any waiter is signaled.
func (s *Session) applyEvent(ev Event) {
	if info, ok := ev.Payload.(*apt.HWInfo); ok {
		s.infoMu.Lock()
		s.info = info
		s.infoMu.Unlock()

		return
	}

	if ev.Channel < 0 || ev.Channel >= len(s.channels) {
		s.logger.Warn("piezo: message for unknown channel", "kind", ev.Kind.String(), "channel", ev.Channel)
		return
	}
	c := s.channels[ev.Channel]

	switch p := ev.Payload.(type) {
	case *apt.ChanEnableState:
		if state := EnableState(p.State); state.IsValid() {
			c.update(func(st *ChannelState) { st.Enabled = state })
		}

	case *apt.PosControlMode:
		if mode := ControlMode(p.Mode); mode.IsValid() {
			c.update(func(st *ChannelState) { st.Mode = mode })
		}

	case *apt.OutputVolts:
		c.update(func(st *ChannelState) { st.RawVoltage = ClampRaw(int64(p.Voltage)) })

	case *apt.OutputPos:
		c.update(func(st *ChannelState) { st.RawPosition = ClampRaw(int64(p.Position)) })

	case *apt.MaxTravel:
		if travel := p.Microns(); travel > 0 {
			c.update(func(st *ChannelState) { st.MaxTravel = travel })
		}

	case *apt.IOSettings:
		if volts := p.MaxVoltage(); volts > 0 {
			c.update(func(st *ChannelState) { st.MaxVoltage = volts })
		}

	case *apt.StatusUpdate:
		c.update(func(st *ChannelState) {
			st.RawVoltage = ClampRaw(int64(p.Voltage))
			st.RawPosition = ClampRaw(int64(p.Position))
		})

		if s.cfg.statusUpdates {
			s.trySend(apt.AckStatusUpdate(s.cfg.dest))
		}
	}
}

// Channels returns the number of channels.
func (s *Session) Channels() int {
	return len(s.channels)
}

// Channel returns a snapshot of the state of channel ch.
func (s *Session) Channel(ch int) (ChannelState, error) {
	c, err := s.channel(ch)
	if err != nil {
		return ChannelState{}, err
	}

	return c.snapshot(), nil
}

// Info returns the last device information received, or nil.
func (s *Session) Info() *apt.HWInfo {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()

	return s.info
}

// GetMetrics returns the session metrics.
func (s *Session) GetMetrics() *SessionMetrics {
	return &s.metrics
}

// GetLogger returns the session logger.
func (s *Session) GetLogger() logger.Logger {
	return s.logger
}

// PendingCount returns the number of queries waiting for a reply.
func (s *Session) PendingCount() int {
	return s.dispatcher.PendingCount()
}

func (s *Session) channel(ch int) (*channel, error) {
	if ch < 0 || ch >= len(s.channels) {
		return nil, fmt.Errorf("%w: channel %d out of range [0, %d)", ErrInvalidArgument, ch, len(s.channels))
	}

	return s.channels[ch], nil
}

func (s *Session) ident(ch int) uint16 {
	return apt.ChanIdent(ch)
}
