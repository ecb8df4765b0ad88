package stage

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/arloliu/go-apt/aptsim"
	"github.com/arloliu/go-apt/config"
	"github.com/arloliu/go-apt/logger"
	"github.com/arloliu/go-apt/piezo"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	level, _ := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger.SetLevel(level)

	os.Exit(m.Run())
}

const testSerial = 71000042

// newTestConfig describes two controllers: "a" drives axes x and y, "b" drives z.
func newTestConfig() *config.Config {
	return &config.Config{
		PollIntervalMs:    5,
		BackoffIntervalMs: 20,
		Devices: []config.DeviceConfig{
			{
				ID:             "a",
				SerialPort:     "sim-a",
				SerialNumber:   testSerial,
				ReplyTimeoutMs: 200,
				Channels:       []config.ChannelConfig{{Channel: 0}, {Channel: 1}},
			},
			{
				ID:             "b",
				SerialPort:     "sim-b",
				ReplyTimeoutMs: 200,
				Channels:       []config.ChannelConfig{{Channel: 0}},
			},
		},
		Axes: []config.AxisConfig{
			{Name: "x", Device: "a", Channel: 0},
			{Name: "y", Device: "a", Channel: 1},
			{Name: "z", Device: "b", Channel: 0},
		},
	}
}

// serveSim runs a simulated controller on one end of a pipe and returns the other.
func serveSim(t *testing.T, opts ...aptsim.Option) (*aptsim.Device, net.Conn) {
	t.Helper()

	sim, err := aptsim.NewDevice(opts...)
	require.NoError(t, err)

	host, dev := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = sim.Serve(ctx, dev)
	}()

	t.Cleanup(func() {
		cancel()
		<-served
	})

	return sim, host
}

type testRig struct {
	stage *Stage
	simA  *aptsim.Device
	simB  *aptsim.Device
}

func newTestStage(t *testing.T, cfg *config.Config, opts ...Option) *testRig {
	t.Helper()

	simA, hostA := serveSim(t, aptsim.WithSerialNumber(testSerial), aptsim.WithMaxTravel(200))
	simB, hostB := serveSim(t, aptsim.WithMaxTravel(400))

	defaults := []Option{
		WithLogger(logger.NewDiscard()),
		WithTransport("a", hostA),
		WithTransport("b", hostB),
	}
	st, err := New(cfg, append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.OnStop() })

	return &testRig{stage: st, simA: simA, simB: simB}
}

func TestStage_StartPollAndMove(t *testing.T) {
	require := require.New(t)

	rig := newTestStage(t, newTestConfig())
	st := rig.stage

	updates := make(chan Position, 1)
	st.Subscribe(func(p Position) {
		select {
		case updates <- p:
		default:
		}
	})

	require.NoError(st.OnStart(context.Background()))
	require.NoError(st.OnStart(context.Background()))
	require.Equal([]string{"x", "y", "z"}, st.Axes())

	select {
	case p := <-updates:
		require.Len(p, 3)
	case <-time.After(2 * time.Second):
		require.Fail("no position update")
	}

	sa, ok := st.Session("a")
	require.True(ok)
	ch, err := sa.Channel(1)
	require.NoError(err)
	require.Equal(piezo.ClosedLoop, ch.Mode)
	require.InDelta(20.0, ch.MaxTravel, 1e-9)

	sb, ok := st.Session("b")
	require.True(ok)
	ch, err = sb.Channel(0)
	require.NoError(err)
	require.InDelta(40.0, ch.MaxTravel, 1e-9)

	require.NoError(st.SetPosition([]float64{10, 5, 30}))
	require.Eventually(func() bool {
		p := st.Position()
		return len(p) == 3 &&
			within(p[0], 10, 0.01) && within(p[1], 5, 0.01) && within(p[2], 30, 0.01)
	}, 2*time.Second, 5*time.Millisecond)

	_, pos := rig.simA.Raw(0)
	require.Equal(uint16(16384), pos)

	require.NotNil(st.Scheduler())
	require.True(st.Scheduler().IsRunning())
}

func TestStage_Stop(t *testing.T) {
	require := require.New(t)

	rig := newTestStage(t, newTestConfig())
	st := rig.stage

	require.NoError(st.OnStop(), "stop before start is a no-op")
	require.NoError(st.OnStart(context.Background()))
	require.Eventually(func() bool { return st.Position() != nil }, 2*time.Second, time.Millisecond)

	scheduler := st.Scheduler()
	require.NoError(st.OnStop())
	require.NoError(st.OnStop())
	require.False(scheduler.IsRunning())
	require.Nil(st.Scheduler())

	_, ok := st.Session("a")
	require.False(ok)

	require.ErrorIs(st.SetPosition([]float64{1, 2, 3}), ErrNotStarted)
	require.ErrorIs(st.OnStart(context.Background()), ErrStopped)
}

func TestStage_SetPositionArguments(t *testing.T) {
	require := require.New(t)

	rig := newTestStage(t, newTestConfig())
	st := rig.stage

	require.ErrorIs(st.SetPosition([]float64{1, 2, 3}), ErrNotStarted)
	require.NoError(st.OnStart(context.Background()))

	require.ErrorIs(st.SetPosition([]float64{1, 2}), ErrInvalidArgument)
	require.ErrorIs(st.SetPosition([]float64{1, 2, 3, 4}), ErrInvalidArgument)

	sa, _ := st.Session("a")
	require.NoError(sa.SetControlMode(1, piezo.OpenLoop))

	err := st.SetPosition([]float64{1, 2, 3})
	require.ErrorIs(err, piezo.ErrWrongMode)
	require.Contains(err.Error(), "axis y")
}

func TestStage_SerialMismatch(t *testing.T) {
	require := require.New(t)

	cfg := newTestConfig()
	cfg.Devices[0].SerialNumber = 12345

	rig := newTestStage(t, cfg)

	err := rig.stage.OnStart(context.Background())
	require.ErrorIs(err, ErrSerialMismatch)
	require.Nil(rig.stage.Scheduler())
	require.ErrorIs(rig.stage.OnStart(context.Background()), ErrStopped)
	require.NoError(rig.stage.OnStop())
}

func TestStage_PollingSurvivesDeviceSilence(t *testing.T) {
	require := require.New(t)

	cfg := newTestConfig()
	cfg.Devices[1].ReplyTimeoutMs = 20

	rig := newTestStage(t, cfg)
	st := rig.stage

	require.NoError(st.OnStart(context.Background()))
	scheduler := st.Scheduler()
	require.Eventually(func() bool { return scheduler.GetMetrics().SuccessCount.Load() > 0 },
		2*time.Second, time.Millisecond)

	rig.simB.Mute(true)
	require.Eventually(func() bool { return scheduler.ConsecutiveFailures() >= 2 },
		2*time.Second, time.Millisecond)
	require.Equal(20*time.Millisecond, scheduler.Interval())
	require.True(scheduler.IsRunning())

	rig.simB.Mute(false)
	require.Eventually(func() bool {
		return scheduler.ConsecutiveFailures() == 0 && scheduler.Interval() == 5*time.Millisecond
	}, 2*time.Second, time.Millisecond)
}

func TestStage_Unsubscribe(t *testing.T) {
	require := require.New(t)

	rig := newTestStage(t, newTestConfig())
	st := rig.stage

	calls := make(chan struct{}, 64)
	unsubscribe := st.Subscribe(func(Position) {
		select {
		case calls <- struct{}{}:
		default:
		}
	})
	st.Subscribe(nil)()

	require.NoError(st.OnStart(context.Background()))
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		require.Fail("observer not called")
	}

	unsubscribe()
	// drain whatever a tick in flight delivered
	time.Sleep(20 * time.Millisecond)
	for len(calls) > 0 {
		<-calls
	}
	time.Sleep(30 * time.Millisecond)
	require.Zero(len(calls))
}

func TestNew_InvalidArguments(t *testing.T) {
	require := require.New(t)

	_, err := New(nil)
	require.ErrorIs(err, ErrInvalidArgument)

	bad := newTestConfig()
	bad.Axes[0].Device = "missing"
	_, err = New(bad)
	require.ErrorIs(err, ErrInvalidArgument)

	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()

	for _, opt := range []Option{
		WithTransport("c", host),
		WithTransport("", host),
		WithTransport("a", nil),
		WithLogger(nil),
	} {
		_, err := New(newTestConfig(), opt)
		require.ErrorIs(err, ErrInvalidArgument)
	}

	st, err := New(newTestConfig(), WithSessionOptions(piezo.WithSendTimeout(time.Second)))
	require.NoError(err)
	require.Nil(st.Position())
}

func TestStage_SerialPortFailure(t *testing.T) {
	cfg := newTestConfig()
	cfg.Devices[1].SerialPort = "/dev/does-not-exist-apt"

	_, hostA := serveSim(t, aptsim.WithSerialNumber(testSerial))

	st, err := New(cfg, WithLogger(logger.NewDiscard()), WithTransport("a", hostA))
	require.NoError(t, err)

	err = st.OnStart(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), `device "b"`)
	require.False(t, errors.Is(err, ErrSerialMismatch))
}

func within(got, want, delta float64) bool {
	d := got - want
	return d <= delta && d >= -delta
}
