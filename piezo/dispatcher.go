package piezo

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/internal/pool"
	"github.com/arloliu/go-apt/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// DeviceChannel is the channel index used for device-level messages such as
// HW_GET_INFO, which do not refer to a single channel.
const DeviceChannel = -1

// Event is a decoded controller message routed by the Dispatcher.
type Event struct {
	// Kind is the message ID of the decoded message.
	Kind apt.MsgID
	// Channel is the 0-based channel index, or DeviceChannel.
	Channel int
	// Payload is the typed payload of the message.
	Payload apt.Payload
}

// EventHandler handles a decoded event. Handlers run on the reader goroutine and
// must not block.
type EventHandler func(ev Event)

type waitKey struct {
	channel int
	kind    apt.MsgID
}

type waitResult struct {
	ev  Event
	err error
}

// WaitHandle is a registration for exactly one reply of a (channel, kind) pair.
//
// It is resolved at most once, either by the matching reply, by Cancel, by a
// timeout in Wait, or by Dispatcher.Close. A handle is never reused.
type WaitHandle struct {
	key    waitKey
	d      *Dispatcher
	result chan waitResult
}

// Wait blocks until the reply arrives or timeout elapses.
//
// On timeout it returns ErrTimeout and the registration is discarded. A reply that
// races the timeout and has already been claimed is still returned.
func (h *WaitHandle) Wait(timeout time.Duration) (Event, error) {
	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case r := <-h.result:
		return r.ev, r.err

	case <-timer.C:
		if h.d.remove(h) {
			return Event{}, ErrTimeout
		}

		// the dispatcher claimed the handle before we could remove it
		r := <-h.result

		return r.ev, r.err
	}
}

// Cancel discards the registration without waiting.
func (h *WaitHandle) Cancel() {
	if h.d.remove(h) {
		return
	}

	<-h.result
}

// resolve delivers the result; the handle must already be removed from the wait map.
func (h *WaitHandle) resolve(ev Event, err error) {
	select {
	case h.result <- waitResult{ev: ev, err: err}:
	default:
		// result is buffered and resolve runs once per handle
	}
}

// Dispatcher decodes framed controller messages and routes each one to the caller
// waiting for it, or to the unsolicited-message handler.
//
// OnMessage is called from the transport reader goroutine and never blocks on a
// caller: state updates run under short per-channel locks and waiters are signaled
// through buffered channels.
type Dispatcher struct {
	logger      logger.Logger
	metrics     *SessionMetrics
	waits       *xsync.MapOf[waitKey, *WaitHandle]
	onEvent     EventHandler
	unsolicited EventHandler
	closed      atomic.Bool
}

// NewDispatcher creates a Dispatcher.
//
// onEvent, when non-nil, is called for every decoded event before any waiter is
// signaled; sessions use it to update channel state. unsolicited, when non-nil, is
// called for events no caller waited for. metrics may be nil.
func NewDispatcher(l logger.Logger, metrics *SessionMetrics, onEvent, unsolicited EventHandler) *Dispatcher {
	if l == nil {
		l = logger.GetLogger()
	}
	if metrics == nil {
		metrics = &SessionMetrics{}
	}

	return &Dispatcher{
		logger:      l,
		metrics:     metrics,
		waits:       xsync.NewMapOf[waitKey, *WaitHandle](),
		onEvent:     onEvent,
		unsolicited: unsolicited,
	}
}

// RegisterWait registers interest in the next reply of the given kind on channel.
//
// It must be called before the request is written. At most one wait per
// (channel, kind) may be outstanding; a second registration fails with
// ErrRequestPending. After Close it fails with ErrUnavailable.
func (d *Dispatcher) RegisterWait(channel int, kind apt.MsgID) (*WaitHandle, error) {
	if d.closed.Load() {
		return nil, ErrUnavailable
	}

	h := &WaitHandle{
		key:    waitKey{channel: channel, kind: kind},
		d:      d,
		result: make(chan waitResult, 1),
	}

	if _, loaded := d.waits.LoadOrStore(h.key, h); loaded {
		return nil, fmt.Errorf("%w: %s on channel %d", ErrRequestPending, kind, channel)
	}

	// Close may have drained the map between the check above and the store.
	if d.closed.Load() {
		h.Cancel()
		return nil, ErrUnavailable
	}

	return h, nil
}

// PendingCount returns the number of outstanding waits.
func (d *Dispatcher) PendingCount() int {
	return d.waits.Size()
}

// OnMessage decodes one framed message and dispatches it.
// Malformed frames are counted, logged and dropped.
func (d *Dispatcher) OnMessage(frame []byte) {
	msg, err := apt.Decode(frame)
	if err != nil {
		d.metrics.incProtocolErrCount()
		d.logger.Warn("piezo: drop malformed message", "error", err, "len", len(frame))

		return
	}

	d.Dispatch(msg)
}

// Dispatch routes a decoded message.
//
// Messages of unknown kind are logged at debug level and dropped. Device error
// reports (HW_RESPONSE, HW_RICHRESPONSE) are logged and passed to the unsolicited
// handler; they never resolve a waiter.
func (d *Dispatcher) Dispatch(msg *apt.Message) {
	payload, err := msg.Payload()
	if err != nil {
		if errors.Is(err, apt.ErrUnknownMessage) {
			d.metrics.incUnknownMsgCount()
			d.logger.Debug("piezo: drop unhandled message", "msg", msg.String())

			return
		}

		d.metrics.incProtocolErrCount()
		d.logger.Warn("piezo: drop malformed payload", "msg", msg.String(), "error", err)

		return
	}

	ev := Event{Kind: msg.ID, Channel: DeviceChannel, Payload: payload}
	if ident := payload.ChanIdent(); ident != 0 {
		ev.Channel = apt.ChanIndex(ident)
	}

	if resp, ok := payload.(*apt.HWResponse); ok {
		d.metrics.incDeviceErrCount()
		d.logger.Warn("piezo: device reported error",
			"msgIdent", apt.MsgID(resp.MsgIdent).String(),
			"code", resp.Code,
			"notes", resp.Notes)

		if d.unsolicited != nil {
			d.unsolicited(ev)
		}

		return
	}

	if d.onEvent != nil {
		d.onEvent(ev)
	}

	if h, ok := d.waits.LoadAndDelete(waitKey{channel: ev.Channel, kind: ev.Kind}); ok {
		d.metrics.incReplyRecvCount()
		h.resolve(ev, nil)

		return
	}

	d.metrics.incUnsolicitedRecvCount()
	d.logger.Debug("piezo: unsolicited message", "kind", ev.Kind.String(), "channel", ev.Channel)

	if d.unsolicited != nil {
		d.unsolicited(ev)
	}
}

// Close resolves every outstanding wait with ErrUnavailable and rejects new
// registrations. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.closed.Store(true)

	d.waits.Range(func(key waitKey, _ *WaitHandle) bool {
		if h, ok := d.waits.LoadAndDelete(key); ok {
			h.resolve(Event{}, ErrUnavailable)
		}

		return true
	})
}

// remove deletes h from the wait map if it is still the registered handle for its
// key. It returns false if the handle was already claimed.
func (d *Dispatcher) remove(h *WaitHandle) bool {
	removed := false
	d.waits.Compute(h.key, func(old *WaitHandle, loaded bool) (*WaitHandle, bool) {
		if loaded && old == h {
			removed = true
			return nil, true
		}

		return old, !loaded
	})

	return removed
}
