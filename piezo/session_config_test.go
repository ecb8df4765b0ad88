package piezo

import (
	"testing"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/logger"
	"github.com/stretchr/testify/require"
)

func TestNewSessionConfig_Defaults(t *testing.T) {
	require := require.New(t)

	cfg, err := NewSessionConfig()
	require.NoError(err)

	require.Len(cfg.Channels(), DefaultChannelCount)
	for _, c := range cfg.Channels() {
		require.Equal(DefaultChannelConfig(), c)
	}
	require.Equal(apt.EndpointUSB, cfg.Destination())
	require.Equal(DefaultReplyTimeout, cfg.ReplyTimeout())
	require.Equal(DefaultSendTimeout, cfg.SendTimeout())
	require.Equal(DefaultCloseTimeout, cfg.CloseTimeout())
	require.Equal(DefaultSenderQueueSize, cfg.SenderQueueSize())
	require.False(cfg.StatusUpdates())
	require.NotNil(cfg.Logger())
}

func TestNewSessionConfig_Options(t *testing.T) {
	require := require.New(t)

	l := logger.NewDiscard()
	cfg, err := NewSessionConfig(
		WithChannels(
			ChannelConfig{MaxVoltage: 150, MaxTravel: 30, Mode: OpenLoop, Enabled: Disabled},
		),
		WithDestination(apt.Bay(1)),
		WithReplyTimeout(500*time.Millisecond),
		WithSendTimeout(time.Second),
		WithCloseTimeout(2*time.Second),
		WithSenderQueueSize(4),
		WithStatusUpdates(true),
		WithLogger(l),
	)
	require.NoError(err)

	require.Equal([]ChannelConfig{{MaxVoltage: 150, MaxTravel: 30, Mode: OpenLoop, Enabled: Disabled}}, cfg.Channels())
	require.Equal(apt.Endpoint(0x22), cfg.Destination())
	require.Equal(500*time.Millisecond, cfg.ReplyTimeout())
	require.Equal(time.Second, cfg.SendTimeout())
	require.Equal(2*time.Second, cfg.CloseTimeout())
	require.Equal(4, cfg.SenderQueueSize())
	require.True(cfg.StatusUpdates())
	require.Same(l, cfg.Logger())

	// Channels returns a copy
	cfg.Channels()[0].MaxVoltage = 1
	require.InDelta(150.0, cfg.Channels()[0].MaxVoltage, 1e-9)
}

func TestNewSessionConfig_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  SessionOption
	}{
		{name: "zero channels", opt: WithChannelCount(0)},
		{name: "too many channels", opt: WithChannelCount(MaxChannelCount + 1)},
		{name: "empty channel list", opt: WithChannels()},
		{name: "zero max voltage", opt: WithChannels(ChannelConfig{Mode: ClosedLoop, Enabled: Enabled})},
		{name: "negative travel", opt: WithChannels(ChannelConfig{MaxVoltage: 75, MaxTravel: -1, Mode: ClosedLoop, Enabled: Enabled})},
		{name: "bad mode", opt: WithChannels(ChannelConfig{MaxVoltage: 75, Mode: 9, Enabled: Enabled})},
		{name: "bad enable state", opt: WithChannels(ChannelConfig{MaxVoltage: 75, Mode: ClosedLoop})},
		{name: "host destination", opt: WithDestination(apt.EndpointHost)},
		{name: "zero reply timeout", opt: WithReplyTimeout(0)},
		{name: "reply timeout too long", opt: WithReplyTimeout(MaxQueryTimeout + time.Second)},
		{name: "send timeout too short", opt: WithSendTimeout(time.Microsecond)},
		{name: "close timeout too long", opt: WithCloseTimeout(time.Hour)},
		{name: "queue size zero", opt: WithSenderQueueSize(0)},
		{name: "queue size too large", opt: WithSenderQueueSize(MaxSenderQueueSize + 1)},
		{name: "nil logger", opt: WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewSessionConfig(tt.opt)
			require.ErrorIs(t, err, ErrInvalidArgument)
			require.Nil(t, cfg)
		})
	}
}
