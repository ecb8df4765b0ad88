package apt

import "fmt"

// MsgID is the 16-bit APT message identifier.
type MsgID uint16

// Generic hardware messages.
const (
	HwDisconnect      MsgID = 0x0002
	HwReqInfo         MsgID = 0x0005
	HwGetInfo         MsgID = 0x0006
	HwStartUpdateMsgs MsgID = 0x0011
	HwStopUpdateMsgs  MsgID = 0x0012
	HwResponse        MsgID = 0x0080
	HwRichResponse    MsgID = 0x0081
)

// Module (channel) messages.
const (
	ModSetChanEnableState MsgID = 0x0210
	ModReqChanEnableState MsgID = 0x0211
	ModGetChanEnableState MsgID = 0x0212
)

// Piezo messages.
const (
	PzSetPosControlMode MsgID = 0x0640
	PzReqPosControlMode MsgID = 0x0641
	PzGetPosControlMode MsgID = 0x0642
	PzSetOutputVolts    MsgID = 0x0643
	PzReqOutputVolts    MsgID = 0x0644
	PzGetOutputVolts    MsgID = 0x0645
	PzSetOutputPos      MsgID = 0x0646
	PzReqOutputPos      MsgID = 0x0647
	PzGetOutputPos      MsgID = 0x0648
	PzReqMaxTravel      MsgID = 0x0650
	PzGetMaxTravel      MsgID = 0x0651
	PzSetZero           MsgID = 0x0658
	PzReqStatusUpdate   MsgID = 0x0660
	PzGetStatusUpdate   MsgID = 0x0661
	PzAckStatusUpdate   MsgID = 0x0664
	PzSetTPZIOSettings  MsgID = 0x07D4
	PzReqTPZIOSettings  MsgID = 0x07D5
	PzGetTPZIOSettings  MsgID = 0x07D6
)

var msgNames = map[MsgID]string{
	HwDisconnect:          "hw_disconnect",
	HwReqInfo:             "hw_req_info",
	HwGetInfo:             "hw_get_info",
	HwStartUpdateMsgs:     "hw_start_updatemsgs",
	HwStopUpdateMsgs:      "hw_stop_updatemsgs",
	HwResponse:            "hw_response",
	HwRichResponse:        "hw_rich_response",
	ModSetChanEnableState: "mod_set_chanenablestate",
	ModReqChanEnableState: "mod_req_chanenablestate",
	ModGetChanEnableState: "mod_get_chanenablestate",
	PzSetPosControlMode:   "pz_set_positioncontrolmode",
	PzReqPosControlMode:   "pz_req_positioncontrolmode",
	PzGetPosControlMode:   "pz_get_positioncontrolmode",
	PzSetOutputVolts:      "pz_set_outputvolts",
	PzReqOutputVolts:      "pz_req_outputvolts",
	PzGetOutputVolts:      "pz_get_outputvolts",
	PzSetOutputPos:        "pz_set_outputpos",
	PzReqOutputPos:        "pz_req_outputpos",
	PzGetOutputPos:        "pz_get_outputpos",
	PzReqMaxTravel:        "pz_req_maxtravel",
	PzGetMaxTravel:        "pz_get_maxtravel",
	PzSetZero:             "pz_set_zero",
	PzReqStatusUpdate:     "pz_req_pzstatusupdate",
	PzGetStatusUpdate:     "pz_get_pzstatusupdate",
	PzAckStatusUpdate:     "pz_ack_pzstatusupdate",
	PzSetTPZIOSettings:    "pz_set_tpz_iosettings",
	PzReqTPZIOSettings:    "pz_req_tpz_iosettings",
	PzGetTPZIOSettings:    "pz_get_tpz_iosettings",
}

// replyOf maps a request message to the message the controller answers with.
var replyOf = map[MsgID]MsgID{
	HwReqInfo:             HwGetInfo,
	ModReqChanEnableState: ModGetChanEnableState,
	PzReqPosControlMode:   PzGetPosControlMode,
	PzReqOutputVolts:      PzGetOutputVolts,
	PzReqOutputPos:        PzGetOutputPos,
	PzReqMaxTravel:        PzGetMaxTravel,
	PzReqStatusUpdate:     PzGetStatusUpdate,
	PzReqTPZIOSettings:    PzGetTPZIOSettings,
}

// String returns the protocol name of the message, or its hex value when unknown.
func (id MsgID) String() string {
	if name, ok := msgNames[id]; ok {
		return name
	}

	return fmt.Sprintf("0x%04X", uint16(id))
}

// IsKnown reports whether the message ID is one this package can decode.
func (id MsgID) IsKnown() bool {
	_, ok := msgNames[id]
	return ok
}

// ReplyOf returns the reply message ID the controller sends for the request id.
// The second return value is false when id does not expect a reply.
func ReplyOf(id MsgID) (MsgID, bool) {
	reply, ok := replyOf[id]
	return reply, ok
}

// Endpoint is an APT source or destination address.
type Endpoint byte

const (
	EndpointHost Endpoint = 0x01
	EndpointRack Endpoint = 0x11
	EndpointBay0 Endpoint = 0x21
	EndpointUSB  Endpoint = 0x50
)

// Bay returns the endpoint of the controller bay with the 0-based index i.
func Bay(i int) Endpoint {
	return EndpointBay0 + Endpoint(i)
}

// ChanIdent converts a 0-based channel index into the 1-based wire identifier.
func ChanIdent(index int) uint16 {
	return uint16(index + 1) //nolint:gosec
}

// ChanIndex converts a 1-based wire channel identifier into a 0-based index.
func ChanIndex(ident uint16) int {
	return int(ident) - 1
}
