package piezo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhysicalToRaw(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		scale    float64
		expected int32
		wantErr  bool
	}{
		{name: "zero", value: 0, scale: 75, expected: 0},
		{name: "half travel", value: 100, scale: 200, expected: 16384},
		{name: "full scale", value: 75, scale: 75, expected: MaxRaw},
		{name: "above max clamps", value: 1000, scale: 75, expected: MaxRaw},
		{name: "negative clamps", value: -5, scale: 75, expected: 0},
		{name: "huge value clamps", value: math.MaxFloat64, scale: 75, expected: MaxRaw},
		{name: "NaN", value: math.NaN(), scale: 75, wantErr: true},
		{name: "+Inf", value: math.Inf(1), scale: 75, wantErr: true},
		{name: "-Inf", value: math.Inf(-1), scale: 75, wantErr: true},
		{name: "zero scale", value: 1, scale: 0, wantErr: true},
		{name: "negative scale", value: 1, scale: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := PhysicalToRaw(tt.value, tt.scale)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expected, raw)
		})
	}
}

func TestRawToPhysical(t *testing.T) {
	require := require.New(t)

	require.InDelta(100.0, RawToPhysical(16384, 200), 0.01)
	require.InDelta(75.0, RawToPhysical(MaxRaw, 75), 1e-9)
	require.Zero(RawToPhysical(-10, 75))
	require.InDelta(75.0, RawToPhysical(40000, 75), 1e-9)
}

func TestRoundTripWithinOneRawUnit(t *testing.T) {
	const scale = 20.0

	for _, x := range []float64{0, 0.001, 1.2345, 7.5, 10, 19.999, 20} {
		raw, err := PhysicalToRaw(x, scale)
		require.NoError(t, err)
		require.InDelta(t, x, RawToPhysical(raw, scale), scale/MaxRaw, "value %v", x)
	}
}

func TestClampRaw(t *testing.T) {
	require := require.New(t)

	require.Equal(int32(0), ClampRaw(-1))
	require.Equal(int32(123), ClampRaw(123))
	require.Equal(int32(MaxRaw), ClampRaw(MaxRaw+1))
	require.Equal(int32(MaxRaw), ClampRaw(math.MaxInt64))
}

func TestChannelStateScaling(t *testing.T) {
	st := ChannelState{RawVoltage: MaxRaw / 2, RawPosition: MaxRaw, MaxVoltage: 150, MaxTravel: 20}

	require.InDelta(t, 75.0, st.Voltage(), 0.01)
	require.InDelta(t, 20.0, st.Position(), 1e-9)
}

func TestChannelSnapshotIsCopy(t *testing.T) {
	c := newChannel(1, DefaultChannelConfig())

	st := c.snapshot()
	st.RawPosition = 99

	require.Equal(t, int32(0), c.snapshot().RawPosition)
	require.Equal(t, 1, c.snapshot().ID)
	require.Equal(t, ClosedLoop, c.snapshot().Mode)

	c.update(func(st *ChannelState) { st.RawPosition = 42 })
	require.Equal(t, int32(42), c.snapshot().RawPosition)
}

func TestControlModeClassification(t *testing.T) {
	require := require.New(t)

	require.True(OpenLoop.IsOpenLoop())
	require.True(OpenLoopSmooth.IsOpenLoop())
	require.False(ClosedLoop.IsOpenLoop())
	require.True(ClosedLoop.IsClosedLoop())
	require.True(ClosedLoopSmooth.IsClosedLoop())
	require.False(ControlMode(0).IsValid())
	require.False(ControlMode(5).IsValid())

	mode, err := ParseControlMode("ClosedLoopSmooth")
	require.NoError(err)
	require.Equal(ClosedLoopSmooth, mode)

	_, err = ParseControlMode("closed")
	require.ErrorIs(err, ErrInvalidArgument)

	require.False(EnableState(0).IsValid())
	require.Equal("Disabled", Disabled.String())
}
