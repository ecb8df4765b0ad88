package piezo

import "errors"

var (
	// ErrWrongMode indicates an operation that is not valid in the channel's current
	// control mode, e.g. a position command in open loop.
	ErrWrongMode = errors.New("piezo: operation not allowed in current control mode")

	// ErrChannelDisabled indicates a motion command on a channel that is not enabled.
	ErrChannelDisabled = errors.New("piezo: channel disabled")

	// ErrInvalidArgument indicates a value out of its legal range or enumeration,
	// an unknown channel index, or an out-of-range timeout.
	ErrInvalidArgument = errors.New("piezo: invalid argument")

	// ErrTimeout indicates that an awaited reply did not arrive in time.
	ErrTimeout = errors.New("piezo: reply timeout")

	// ErrUnavailable indicates that the session is not open, the transport failed,
	// or the command queue could not accept the command.
	ErrUnavailable = errors.New("piezo: device unavailable")

	// ErrProtocol indicates a malformed or unexpected reply.
	ErrProtocol = errors.New("piezo: protocol error")

	// ErrRequestPending indicates that a reply of the same kind is already awaited on
	// the channel. Concurrent identical queries are rejected, not queued.
	ErrRequestPending = errors.New("piezo: request already pending")

	// ErrSessionConfigNil indicates that a nil SessionConfig was provided.
	ErrSessionConfigNil = errors.New("piezo: session config is nil")
)
