package apt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayload(t *testing.T) {
	tests := []struct {
		name     string
		msg      *Message
		expected Payload
	}{
		{
			name:     "enable state",
			msg:      GetChanEnableState(EndpointUSB, 2, 1),
			expected: &ChanEnableState{Chan: 2, State: 1},
		},
		{
			name:     "control mode",
			msg:      GetPosControlMode(EndpointUSB, 1, 4),
			expected: &PosControlMode{Chan: 1, Mode: 4},
		},
		{
			name:     "output volts",
			msg:      GetOutputVolts(EndpointUSB, 1, 32767),
			expected: &OutputVolts{Chan: 1, Voltage: 32767},
		},
		{
			name:     "output pos",
			msg:      GetOutputPos(EndpointUSB, 1, 16384),
			expected: &OutputPos{Chan: 1, Position: 16384},
		},
		{
			name:     "max travel",
			msg:      GetMaxTravel(EndpointUSB, 2, 200),
			expected: &MaxTravel{Chan: 2, Travel: 200},
		},
		{
			name:     "status update",
			msg:      GetStatusUpdate(EndpointUSB, &StatusUpdate{Chan: 1, Voltage: 10, Position: 20, StatusBits: StatusConnected | StatusClosedLoop}),
			expected: &StatusUpdate{Chan: 1, Voltage: 10, Position: 20, StatusBits: StatusConnected | StatusClosedLoop},
		},
		{
			name:     "io settings",
			msg:      GetIOSettings(EndpointUSB, &IOSettings{Chan: 1, VoltageLimit: VoltageLimit100V}),
			expected: &IOSettings{Chan: 1, VoltageLimit: VoltageLimit100V},
		},
		{
			name: "hw info",
			msg: GetHWInfo(EndpointUSB, &HWInfo{
				SerialNumber: 81812345,
				Model:        "TPZ001",
				Type:         16,
				Firmware:     [3]byte{4, 2, 1},
				Notes:        "APT Piezo",
				NumChannels:  1,
			}),
			expected: &HWInfo{
				SerialNumber: 81812345,
				Model:        "TPZ001",
				Type:         16,
				Firmware:     [3]byte{4, 2, 1},
				Notes:        "APT Piezo",
				NumChannels:  1,
			},
		},
		{
			name:     "rich response",
			msg:      GetHWRichResponse(EndpointUSB, &HWResponse{MsgIdent: 0x0646, Code: 10, Notes: "over voltage"}),
			expected: &HWResponse{MsgIdent: 0x0646, Code: 10, Notes: "over voltage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			msg, err := Decode(tt.msg.Encode())
			require.NoError(err)

			payload, err := msg.Payload()
			require.NoError(err)
			require.Equal(tt.expected, payload)
			require.Equal(tt.expected.ChanIdent(), msg.ChanIdent())
		})
	}
}

func TestPayload_Errors(t *testing.T) {
	require := require.New(t)

	_, err := SetZero(EndpointUSB, 1).Payload()
	require.ErrorIs(err, ErrUnknownMessage)

	short := NewDataMessage(PzGetOutputPos, []byte{0x01, 0x00}, EndpointHost, EndpointUSB)
	_, err = short.Payload()
	require.ErrorIs(err, ErrShortPayload)
}

func TestPayloadHelpers(t *testing.T) {
	require := require.New(t)

	require.InDelta(20.0, (&MaxTravel{Travel: 200}).Microns(), 1e-9)
	require.InDelta(75.0, (&IOSettings{VoltageLimit: VoltageLimit75V}).MaxVoltage(), 1e-9)
	require.InDelta(150.0, (&IOSettings{VoltageLimit: VoltageLimit150V}).MaxVoltage(), 1e-9)
	require.Zero((&IOSettings{VoltageLimit: 9}).MaxVoltage())
	require.Equal("1.2.4", (&HWInfo{Firmware: [3]byte{4, 2, 1}}).FirmwareVersion())
}
