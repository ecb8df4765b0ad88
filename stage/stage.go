// Package stage drives a multi-axis piezo stage built from one or more APT
// controllers.
//
// Each axis is a channel of a controller. OnStart opens a session per
// controller, initializes it and starts polling the position of every axis;
// observers registered with Subscribe receive each new reading. OnStop stops
// polling and closes the sessions.
//
//	cfg, _ := config.Load("stage.yaml")
//	st, _ := stage.New(cfg)
//	if err := st.OnStart(ctx); err != nil {
//	    // ...
//	}
//	defer st.OnStop()
//
//	st.Subscribe(func(p stage.Position) { fmt.Println(p) })
//	_ = st.SetPosition([]float64{10, 10, 5})
package stage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/arloliu/go-apt/config"
	"github.com/arloliu/go-apt/logger"
	"github.com/arloliu/go-apt/piezo"
	"github.com/arloliu/go-apt/poll"
	"github.com/arloliu/go-apt/serialport"
)

var (
	// ErrInvalidArgument indicates an invalid option or argument.
	ErrInvalidArgument = errors.New("stage: invalid argument")
	// ErrNotStarted indicates a call that needs a started stage.
	ErrNotStarted = errors.New("stage: not started")
	// ErrStopped indicates OnStart on a stage that was already stopped.
	ErrStopped = errors.New("stage: stopped")
	// ErrSerialMismatch indicates a controller whose serial number differs from
	// the configured one.
	ErrSerialMismatch = errors.New("stage: serial number mismatch")
)

// Position holds one reading per axis, in micrometers, in axis order.
type Position []float64

// Observer receives position updates on the polling goroutine. It must not
// block and must not modify the Position.
type Observer func(Position)

type runState int

const (
	idleState runState = iota
	startedState
	stoppedState
)

type device struct {
	cfg     *config.DeviceConfig
	session *piezo.Session
}

type axis struct {
	name    string
	dev     *device
	channel int
}

// Stage is a set of piezo axes polled as one position.
type Stage struct {
	cfg    *config.Config
	opts   options
	logger logger.Logger

	mu        sync.Mutex
	state     runState
	devices   []*device
	axes      []axis
	scheduler *poll.Scheduler[Position]

	posMu sync.RWMutex
	pos   Position

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObsID int
}

// New creates a stage from cfg. Nothing is opened until OnStart.
func New(cfg *config.Config, opts ...Option) (*Stage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidArgument)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	config.Normalize(cfg)

	st := &Stage{
		cfg:       cfg,
		opts:      options{logger: logger.GetLogger()},
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		if err := opt.apply(&st.opts); err != nil {
			return nil, err
		}
	}

	for id := range st.opts.transports {
		if _, ok := cfg.Device(id); !ok {
			return nil, fmt.Errorf("%w: transport for unknown device %q", ErrInvalidArgument, id)
		}
	}

	st.logger = st.opts.logger.With("component", "stage")

	return st, nil
}

// OnStart opens and initializes every controller and starts polling. On error
// every transport is closed and the stage is left stopped. Calling OnStart on a
// started stage does nothing.
func (st *Stage) OnStart(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.state {
	case startedState:
		return nil
	case stoppedState:
		return ErrStopped
	}

	if ctx == nil {
		ctx = context.Background()
	}

	devices := make(map[string]*device, len(st.cfg.Devices))
	for i := range st.cfg.Devices {
		dcfg := &st.cfg.Devices[i]

		dev, err := st.openDevice(ctx, dcfg)
		if err != nil {
			st.abortStart()
			return err
		}
		st.devices = append(st.devices, dev)
		devices[dcfg.ID] = dev
	}

	st.axes = st.axes[:0]
	for _, a := range st.cfg.Axes {
		st.axes = append(st.axes, axis{name: a.Name, dev: devices[a.Device], channel: a.Channel})
	}

	scheduler, err := poll.NewScheduler[Position](
		poll.WithContext(ctx),
		poll.WithName("stage"),
		poll.WithBackoffInterval(st.cfg.BackoffInterval()),
		poll.WithLogger(st.opts.logger),
	)
	if err == nil {
		err = scheduler.Start(st.cfg.PollInterval(), st.refresh, st.publish)
	}
	if err != nil {
		st.abortStart()
		return fmt.Errorf("stage: start polling: %w", err)
	}
	st.scheduler = scheduler
	st.state = startedState

	st.logger.Info("stage: started", "devices", len(st.devices), "axes", len(st.axes))

	return nil
}

// OnStop stops polling and closes every session. Once it returns no observer is
// called any more. A stopped stage cannot be started again. It is safe to call
// more than once.
func (st *Stage) OnStop() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.state != startedState {
		return nil
	}

	st.scheduler.Stop()
	err := st.closeDevices()
	st.state = stoppedState

	st.logger.Info("stage: stopped")

	return err
}

func (st *Stage) openDevice(ctx context.Context, dcfg *config.DeviceConfig) (*device, error) {
	l := st.opts.logger.With("device", dcfg.ID)

	port, ok := st.opts.transports[dcfg.ID]
	if !ok {
		sp, err := serialport.Open(dcfg.SerialConfig())
		if err != nil {
			return nil, fmt.Errorf("stage: device %q: %w", dcfg.ID, err)
		}
		port = sp
	}

	sessionOpts, err := dcfg.SessionOptions()
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("stage: device %q: %w", dcfg.ID, err)
	}
	sessionOpts = append(sessionOpts, piezo.WithLogger(l))
	sessionOpts = append(sessionOpts, st.opts.sessionOpt...)

	scfg, err := piezo.NewSessionConfig(sessionOpts...)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("stage: device %q: %w", dcfg.ID, err)
	}

	session, err := piezo.NewSession(ctx, port, scfg)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("stage: device %q: %w", dcfg.ID, err)
	}

	dev := &device{cfg: dcfg, session: session}
	if err := st.initDevice(dev); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("stage: device %q: %w", dcfg.ID, err)
	}

	return dev, nil
}

func (st *Stage) initDevice(dev *device) error {
	if err := dev.session.Open(); err != nil {
		return err
	}

	timeout := dev.cfg.ReplyTimeout()

	if dev.cfg.SerialNumber != 0 {
		info, err := dev.session.GetInfo(timeout)
		if err != nil {
			return err
		}
		if info.SerialNumber != dev.cfg.SerialNumber {
			return fmt.Errorf("%w: want %d, got %d", ErrSerialMismatch, dev.cfg.SerialNumber, info.SerialNumber)
		}
	}

	return dev.session.Initialize(timeout)
}

// abortStart releases everything a failed OnStart acquired. Caller holds st.mu.
func (st *Stage) abortStart() {
	_ = st.closeDevices()
	for _, rw := range st.opts.transports {
		_ = rw.Close()
	}
	st.state = stoppedState
}

// closeDevices closes and forgets every open session. Caller holds st.mu.
func (st *Stage) closeDevices() error {
	var errs []error
	for _, dev := range st.devices {
		if err := dev.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device %q: %w", dev.cfg.ID, err))
		}
	}
	st.devices = nil

	return errors.Join(errs...)
}

func (st *Stage) refresh() (Position, error) {
	pos := make(Position, len(st.axes))
	for i, a := range st.axes {
		v, err := a.dev.session.GetPosition(a.channel, a.dev.cfg.ReplyTimeout())
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", a.name, err)
		}
		pos[i] = v
	}

	return pos, nil
}

func (st *Stage) publish(pos Position) {
	st.posMu.Lock()
	st.pos = pos
	st.posMu.Unlock()

	st.obsMu.RLock()
	defer st.obsMu.RUnlock()

	for _, fn := range st.observers {
		fn(pos)
	}
}

// Axes returns the axis names in position order.
func (st *Stage) Axes() []string {
	names := make([]string, 0, len(st.cfg.Axes))
	for _, a := range st.cfg.Axes {
		names = append(names, a.Name)
	}

	return names
}

// Position returns the last polled position, or nil before the first reading.
func (st *Stage) Position() Position {
	st.posMu.RLock()
	defer st.posMu.RUnlock()

	return slices.Clone(st.pos)
}

// SetPosition moves every axis to pos, given in micrometers in axis order.
// The axes must be in a closed-loop mode. It stops at the first axis whose
// command fails.
func (st *Stage) SetPosition(pos []float64) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.state != startedState {
		return ErrNotStarted
	}
	if len(pos) != len(st.axes) {
		return fmt.Errorf("%w: got %d positions for %d axes", ErrInvalidArgument, len(pos), len(st.axes))
	}

	for i, a := range st.axes {
		if err := a.dev.session.SetPosition(a.channel, pos[i]); err != nil {
			return fmt.Errorf("stage: axis %s: %w", a.name, err)
		}
	}

	return nil
}

// Session returns the session of device id while the stage is started.
func (st *Stage) Session(id string) (*piezo.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, dev := range st.devices {
		if dev.cfg.ID == id {
			return dev.session, true
		}
	}

	return nil, false
}

// Scheduler returns the position poller while the stage is started, or nil.
func (st *Stage) Scheduler() *poll.Scheduler[Position] {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.state != startedState {
		return nil
	}

	return st.scheduler
}

// Subscribe registers fn for position updates and returns a function that
// removes it.
func (st *Stage) Subscribe(fn Observer) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	st.obsMu.Lock()
	id := st.nextObsID
	st.nextObsID++
	st.observers[id] = fn
	st.obsMu.Unlock()

	return func() {
		st.obsMu.Lock()
		delete(st.observers, id)
		st.obsMu.Unlock()
	}
}
