package apt

import "encoding/binary"

// Host-to-controller commands. dest is the controller or bay endpoint and chan is
// the 1-based channel identifier; the source is always EndpointHost.

func SetChanEnableState(dest Endpoint, chanIdent uint16, state byte) *Message {
	return NewHeaderMessage(ModSetChanEnableState, byte(chanIdent), state, dest, EndpointHost)
}

func ReqChanEnableState(dest Endpoint, chanIdent uint16) *Message {
	return NewHeaderMessage(ModReqChanEnableState, byte(chanIdent), 0, dest, EndpointHost)
}

func SetPosControlMode(dest Endpoint, chanIdent uint16, mode byte) *Message {
	return NewHeaderMessage(PzSetPosControlMode, byte(chanIdent), mode, dest, EndpointHost)
}

func ReqPosControlMode(dest Endpoint, chanIdent uint16) *Message {
	return NewHeaderMessage(PzReqPosControlMode, byte(chanIdent), 0, dest, EndpointHost)
}

// SetOutputVolts sets the output voltage as a fraction 0..32767 of the maximum voltage.
func SetOutputVolts(dest Endpoint, chanIdent uint16, raw int16) *Message {
	return NewDataMessage(PzSetOutputVolts, chanWord(chanIdent, uint16(raw)), dest, EndpointHost) //nolint:gosec
}

func ReqOutputVolts(dest Endpoint, chanIdent uint16) *Message {
	return NewHeaderMessage(PzReqOutputVolts, byte(chanIdent), 0, dest, EndpointHost)
}

// SetOutputPos sets the closed-loop position as a fraction 0..32767 of the maximum travel.
func SetOutputPos(dest Endpoint, chanIdent uint16, raw uint16) *Message {
	return NewDataMessage(PzSetOutputPos, chanWord(chanIdent, raw), dest, EndpointHost)
}

func ReqOutputPos(dest Endpoint, chanIdent uint16) *Message {
	return NewHeaderMessage(PzReqOutputPos, byte(chanIdent), 0, dest, EndpointHost)
}

func ReqMaxTravel(dest Endpoint, chanIdent uint16) *Message {
	return NewHeaderMessage(PzReqMaxTravel, byte(chanIdent), 0, dest, EndpointHost)
}

// SetZero makes the current position the reference for position 0.
func SetZero(dest Endpoint, chanIdent uint16) *Message {
	return NewHeaderMessage(PzSetZero, byte(chanIdent), 0, dest, EndpointHost)
}

func ReqStatusUpdate(dest Endpoint, chanIdent uint16) *Message {
	return NewHeaderMessage(PzReqStatusUpdate, byte(chanIdent), 0, dest, EndpointHost)
}

// AckStatusUpdate is the keepalive a controller expects for automatic status updates.
func AckStatusUpdate(dest Endpoint) *Message {
	return NewHeaderMessage(PzAckStatusUpdate, 0, 0, dest, EndpointHost)
}

func ReqIOSettings(dest Endpoint, chanIdent uint16) *Message {
	return NewHeaderMessage(PzReqTPZIOSettings, byte(chanIdent), 0, dest, EndpointHost)
}

func ReqHWInfo(dest Endpoint) *Message {
	return NewHeaderMessage(HwReqInfo, 0, 0, dest, EndpointHost)
}

func StartUpdateMsgs(dest Endpoint) *Message {
	return NewHeaderMessage(HwStartUpdateMsgs, 0, 0, dest, EndpointHost)
}

func StopUpdateMsgs(dest Endpoint) *Message {
	return NewHeaderMessage(HwStopUpdateMsgs, 0, 0, dest, EndpointHost)
}

func Disconnect(dest Endpoint) *Message {
	return NewHeaderMessage(HwDisconnect, 0, 0, dest, EndpointHost)
}

// Controller-to-host replies, used by device simulators and tests.

func GetChanEnableState(source Endpoint, chanIdent uint16, state byte) *Message {
	return NewHeaderMessage(ModGetChanEnableState, byte(chanIdent), state, EndpointHost, source)
}

func GetPosControlMode(source Endpoint, chanIdent uint16, mode byte) *Message {
	return NewHeaderMessage(PzGetPosControlMode, byte(chanIdent), mode, EndpointHost, source)
}

func GetOutputVolts(source Endpoint, chanIdent uint16, raw int16) *Message {
	return NewDataMessage(PzGetOutputVolts, chanWord(chanIdent, uint16(raw)), EndpointHost, source) //nolint:gosec
}

func GetOutputPos(source Endpoint, chanIdent uint16, raw uint16) *Message {
	return NewDataMessage(PzGetOutputPos, chanWord(chanIdent, raw), EndpointHost, source)
}

// GetMaxTravel reports the maximum travel in units of 100 nm.
func GetMaxTravel(source Endpoint, chanIdent uint16, travel uint16) *Message {
	return NewDataMessage(PzGetMaxTravel, chanWord(chanIdent, travel), EndpointHost, source)
}

func GetStatusUpdate(source Endpoint, p *StatusUpdate) *Message {
	data := make([]byte, statusUpdateDataLength)
	binary.LittleEndian.PutUint16(data[0:], p.Chan)
	binary.LittleEndian.PutUint16(data[2:], uint16(p.Voltage))  //nolint:gosec
	binary.LittleEndian.PutUint16(data[4:], uint16(p.Position)) //nolint:gosec
	binary.LittleEndian.PutUint32(data[6:], p.StatusBits)

	return NewDataMessage(PzGetStatusUpdate, data, EndpointHost, source)
}

func GetIOSettings(source Endpoint, p *IOSettings) *Message {
	data := make([]byte, 10)
	binary.LittleEndian.PutUint16(data[0:], p.Chan)
	binary.LittleEndian.PutUint16(data[2:], p.VoltageLimit)
	binary.LittleEndian.PutUint16(data[4:], p.HubAnalogInput)

	return NewDataMessage(PzGetTPZIOSettings, data, EndpointHost, source)
}

func GetHWInfo(source Endpoint, p *HWInfo) *Message {
	data := make([]byte, hwInfoDataLength)
	binary.LittleEndian.PutUint32(data[0:], p.SerialNumber)
	copy(data[4:12], p.Model)
	binary.LittleEndian.PutUint16(data[12:], p.Type)
	copy(data[14:17], p.Firmware[:])
	copy(data[18:66], p.Notes)
	binary.LittleEndian.PutUint16(data[78:], p.HWVersion)
	binary.LittleEndian.PutUint16(data[80:], p.ModState)
	binary.LittleEndian.PutUint16(data[82:], p.NumChannels)

	return NewDataMessage(HwGetInfo, data, EndpointHost, source)
}

func GetHWRichResponse(source Endpoint, p *HWResponse) *Message {
	data := make([]byte, hwRichResponseDataLength)
	binary.LittleEndian.PutUint16(data[0:], p.MsgIdent)
	binary.LittleEndian.PutUint16(data[2:], p.Code)
	copy(data[4:], p.Notes)

	return NewDataMessage(HwRichResponse, data, EndpointHost, source)
}

func chanWord(chanIdent uint16, value uint16) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], chanIdent)
	binary.LittleEndian.PutUint16(data[2:], value)

	return data
}
