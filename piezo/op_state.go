package piezo

import "sync/atomic"

// OpState is the lifecycle state of a Session.
type OpState uint32

const (
	ClosedState OpState = iota
	ClosingState
	OpeningState
	OpenedState
)

func (s OpState) String() string {
	switch s {
	case ClosedState:
		return "Closed"
	case ClosingState:
		return "Closing"
	case OpeningState:
		return "Opening"
	case OpenedState:
		return "Opened"
	default:
		return "Unknown"
	}
}

type atomicOpState struct {
	state atomic.Uint32
}

func (st *atomicOpState) Get() OpState {
	return OpState(st.state.Load())
}

func (st *atomicOpState) IsOpened() bool {
	return st.Get() == OpenedState
}

// IsActive reports whether the state is Opening or Opened.
func (st *atomicOpState) IsActive() bool {
	s := st.Get()
	return s == OpeningState || s == OpenedState
}

// ToOpening moves Closed to Opening.
func (st *atomicOpState) ToOpening() bool {
	return st.state.CompareAndSwap(uint32(ClosedState), uint32(OpeningState))
}

// ToOpened moves Opening to Opened.
func (st *atomicOpState) ToOpened() bool {
	return st.state.CompareAndSwap(uint32(OpeningState), uint32(OpenedState))
}

// ToClosing moves Opened or Opening to Closing.
func (st *atomicOpState) ToClosing() bool {
	if st.state.CompareAndSwap(uint32(OpenedState), uint32(ClosingState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(OpeningState), uint32(ClosingState))
}

// ToClosed moves Closing to Closed.
func (st *atomicOpState) ToClosed() bool {
	return st.state.CompareAndSwap(uint32(ClosingState), uint32(ClosedState))
}
