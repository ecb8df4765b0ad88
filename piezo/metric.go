package piezo

import "sync/atomic"

// SessionMetrics contains atomic metrics for a piezo session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type SessionMetrics struct {
	// CommandSendCount indicates the number of messages written to the transport.
	CommandSendCount atomic.Uint64
	// CommandErrCount indicates the number of failed transport writes.
	CommandErrCount atomic.Uint64
	// ReplyRecvCount indicates the number of replies delivered to a waiting caller.
	ReplyRecvCount atomic.Uint64
	// UnsolicitedRecvCount indicates the number of decoded messages no caller waited for.
	UnsolicitedRecvCount atomic.Uint64
	// UnknownMsgCount indicates the number of dropped messages of an unknown kind.
	UnknownMsgCount atomic.Uint64
	// ProtocolErrCount indicates the number of dropped malformed messages.
	ProtocolErrCount atomic.Uint64
	// DeviceErrCount indicates the number of error reports sent by the controller.
	DeviceErrCount atomic.Uint64
	// TimeoutCount indicates the number of queries that timed out.
	TimeoutCount atomic.Uint64
	// InflightCount indicates the number of queries waiting for a reply.
	InflightCount atomic.Int64
}

func (m *SessionMetrics) incCommandSendCount()     { m.CommandSendCount.Add(1) }
func (m *SessionMetrics) incCommandErrCount()      { m.CommandErrCount.Add(1) }
func (m *SessionMetrics) incReplyRecvCount()       { m.ReplyRecvCount.Add(1) }
func (m *SessionMetrics) incUnsolicitedRecvCount() { m.UnsolicitedRecvCount.Add(1) }
func (m *SessionMetrics) incUnknownMsgCount()      { m.UnknownMsgCount.Add(1) }
func (m *SessionMetrics) incProtocolErrCount()     { m.ProtocolErrCount.Add(1) }
func (m *SessionMetrics) incDeviceErrCount()       { m.DeviceErrCount.Add(1) }
func (m *SessionMetrics) incTimeoutCount()         { m.TimeoutCount.Add(1) }
func (m *SessionMetrics) incInflightCount()        { m.InflightCount.Add(1) }
func (m *SessionMetrics) decInflightCount()        { m.InflightCount.Add(-1) }
