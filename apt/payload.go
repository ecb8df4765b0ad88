package apt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Payload is the typed content of a controller-to-host message.
type Payload interface {
	// ChanIdent returns the 1-based channel the payload refers to, or 0 for
	// device-level payloads.
	ChanIdent() uint16
}

// ChanEnableState is the payload of MOD_GET_CHANENABLESTATE.
type ChanEnableState struct {
	Chan  uint16
	State byte // 1 = enabled, 2 = disabled
}

func (p *ChanEnableState) ChanIdent() uint16 { return p.Chan }

// PosControlMode is the payload of PZ_GET_POSCONTROLMODE.
type PosControlMode struct {
	Chan uint16
	Mode byte // 1 open loop, 2 closed loop, 3 open loop smooth, 4 closed loop smooth
}

func (p *PosControlMode) ChanIdent() uint16 { return p.Chan }

// OutputVolts is the payload of PZ_GET_OUTPUTVOLTS.
type OutputVolts struct {
	Chan    uint16
	Voltage int16 // 0..32767 of the channel's maximum voltage
}

func (p *OutputVolts) ChanIdent() uint16 { return p.Chan }

// OutputPos is the payload of PZ_GET_OUTPUTPOS.
type OutputPos struct {
	Chan     uint16
	Position uint16 // 0..32767 of the channel's maximum travel
}

func (p *OutputPos) ChanIdent() uint16 { return p.Chan }

// MaxTravel is the payload of PZ_GET_MAXTRAVEL.
type MaxTravel struct {
	Chan   uint16
	Travel uint16 // in units of 100 nm
}

func (p *MaxTravel) ChanIdent() uint16 { return p.Chan }

// Microns returns the maximum travel in micrometers.
func (p *MaxTravel) Microns() float64 { return float64(p.Travel) / 10 }

// StatusUpdate is the payload of PZ_GET_PZSTATUSUPDATE.
type StatusUpdate struct {
	Chan       uint16
	Voltage    int16
	Position   int16
	StatusBits uint32
}

func (p *StatusUpdate) ChanIdent() uint16 { return p.Chan }

// Status bits reported in StatusUpdate.StatusBits.
const (
	StatusConnected       uint32 = 0x00000001
	StatusZeroed          uint32 = 0x00000010
	StatusZeroing         uint32 = 0x00000020
	StatusStrainGaugeConn uint32 = 0x00000100
	StatusClosedLoop      uint32 = 0x00000400
	StatusChannelEnabled  uint32 = 0x80000000
)

const statusUpdateDataLength = 10

// IOSettings is the payload of PZ_GET_TPZ_IOSETTINGS.
type IOSettings struct {
	Chan           uint16
	VoltageLimit   uint16 // 1 = 75 V, 2 = 100 V, 3 = 150 V
	HubAnalogInput uint16
}

func (p *IOSettings) ChanIdent() uint16 { return p.Chan }

// Voltage limit codes carried by IOSettings.VoltageLimit.
const (
	VoltageLimit75V  uint16 = 1
	VoltageLimit100V uint16 = 2
	VoltageLimit150V uint16 = 3
)

// MaxVoltage returns the voltage limit in volts, or 0 for an unknown code.
func (p *IOSettings) MaxVoltage() float64 {
	switch p.VoltageLimit {
	case VoltageLimit75V:
		return 75
	case VoltageLimit100V:
		return 100
	case VoltageLimit150V:
		return 150
	default:
		return 0
	}
}

// HWInfo is the payload of HW_GET_INFO.
type HWInfo struct {
	SerialNumber uint32
	Model        string
	Type         uint16
	Firmware     [3]byte // minor, interim, major
	Notes        string
	HWVersion    uint16
	ModState     uint16
	NumChannels  uint16
}

func (p *HWInfo) ChanIdent() uint16 { return 0 }

// FirmwareVersion returns the firmware version as "major.interim.minor".
func (p *HWInfo) FirmwareVersion() string {
	return fmt.Sprintf("%d.%d.%d", p.Firmware[2], p.Firmware[1], p.Firmware[0])
}

const hwInfoDataLength = 84

// HWResponse is the payload of HW_RESPONSE and HW_RICHRESPONSE, an unsolicited
// error or event report from the controller.
type HWResponse struct {
	MsgIdent uint16
	Code     uint16
	Notes    string
}

func (p *HWResponse) ChanIdent() uint16 { return 0 }

const hwRichResponseDataLength = 68

// Payload decodes the typed payload of a controller-to-host message.
//
// It returns ErrUnknownMessage for message IDs that carry no payload known to this
// package (including host-to-controller commands) and ErrShortPayload when the
// data packet is too short for the message ID.
func (m *Message) Payload() (Payload, error) {
	switch m.ID {
	case ModGetChanEnableState:
		return &ChanEnableState{Chan: uint16(m.Param1), State: m.Param2}, nil

	case PzGetPosControlMode:
		return &PosControlMode{Chan: uint16(m.Param1), Mode: m.Param2}, nil

	case PzGetOutputVolts:
		if err := m.needData(4); err != nil {
			return nil, err
		}

		return &OutputVolts{
			Chan:    binary.LittleEndian.Uint16(m.Data[0:]),
			Voltage: int16(binary.LittleEndian.Uint16(m.Data[2:])), //nolint:gosec
		}, nil

	case PzGetOutputPos:
		if err := m.needData(4); err != nil {
			return nil, err
		}

		return &OutputPos{
			Chan:     binary.LittleEndian.Uint16(m.Data[0:]),
			Position: binary.LittleEndian.Uint16(m.Data[2:]),
		}, nil

	case PzGetMaxTravel:
		if err := m.needData(4); err != nil {
			return nil, err
		}

		return &MaxTravel{
			Chan:   binary.LittleEndian.Uint16(m.Data[0:]),
			Travel: binary.LittleEndian.Uint16(m.Data[2:]),
		}, nil

	case PzGetStatusUpdate:
		if err := m.needData(statusUpdateDataLength); err != nil {
			return nil, err
		}

		return &StatusUpdate{
			Chan:       binary.LittleEndian.Uint16(m.Data[0:]),
			Voltage:    int16(binary.LittleEndian.Uint16(m.Data[2:])), //nolint:gosec
			Position:   int16(binary.LittleEndian.Uint16(m.Data[4:])), //nolint:gosec
			StatusBits: binary.LittleEndian.Uint32(m.Data[6:]),
		}, nil

	case PzGetTPZIOSettings:
		if err := m.needData(6); err != nil {
			return nil, err
		}

		return &IOSettings{
			Chan:           binary.LittleEndian.Uint16(m.Data[0:]),
			VoltageLimit:   binary.LittleEndian.Uint16(m.Data[2:]),
			HubAnalogInput: binary.LittleEndian.Uint16(m.Data[4:]),
		}, nil

	case HwGetInfo:
		if err := m.needData(hwInfoDataLength); err != nil {
			return nil, err
		}

		d := m.Data
		info := &HWInfo{
			SerialNumber: binary.LittleEndian.Uint32(d[0:]),
			Model:        cString(d[4:12]),
			Type:         binary.LittleEndian.Uint16(d[12:]),
			Notes:        cString(d[18:66]),
			HWVersion:    binary.LittleEndian.Uint16(d[78:]),
			ModState:     binary.LittleEndian.Uint16(d[80:]),
			NumChannels:  binary.LittleEndian.Uint16(d[82:]),
		}
		copy(info.Firmware[:], d[14:17])

		return info, nil

	case HwResponse:
		return &HWResponse{MsgIdent: uint16(m.Param1), Code: uint16(m.Param2)}, nil

	case HwRichResponse:
		if err := m.needData(4); err != nil {
			return nil, err
		}

		resp := &HWResponse{
			MsgIdent: binary.LittleEndian.Uint16(m.Data[0:]),
			Code:     binary.LittleEndian.Uint16(m.Data[2:]),
		}
		resp.Notes = cString(m.Data[4:])

		return resp, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, m.ID)
	}
}

func (m *Message) needData(n int) error {
	if len(m.Data) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortPayload, m.ID, n, len(m.Data))
	}

	return nil
}

// cString returns the bytes up to the first NUL as a string.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}
