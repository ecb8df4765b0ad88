package poll

import "sync/atomic"

// Metrics contains atomic metrics for a Scheduler.
type Metrics struct {
	// TickCount indicates the number of ticks run.
	TickCount atomic.Uint64
	// SuccessCount indicates the number of ticks whose refresh and update succeeded.
	SuccessCount atomic.Uint64
	// FailureCount indicates the number of failed ticks.
	FailureCount atomic.Uint64
	// PanicCount indicates the number of recovered callback panics.
	PanicCount atomic.Uint64
}

func (m *Metrics) incTickCount()    { m.TickCount.Add(1) }
func (m *Metrics) incSuccessCount() { m.SuccessCount.Add(1) }
func (m *Metrics) incFailureCount() { m.FailureCount.Add(1) }
func (m *Metrics) incPanicCount()   { m.PanicCount.Add(1) }
