// internal/bridge/controller.go
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ColonelBlimp/wklink/internal/keyer"
	"github.com/ColonelBlimp/wklink/internal/logger"
	"github.com/ColonelBlimp/wklink/internal/port"
	"github.com/ColonelBlimp/wklink/internal/telemetry"
	"github.com/ColonelBlimp/wklink/internal/winkeyer"
)

// DefaultJoinTimeout bounds the wait for the reader to stop on disconnect.
const DefaultJoinTimeout = 500 * time.Millisecond

// Config is what Connect needs besides the port path.
type Config struct {
	Port        port.Config
	Speed       winkeyer.SpeedRange
	JoinTimeout time.Duration
}

// DefaultConfig returns the WinKeyer defaults with a 10-30 WPM pot range.
func DefaultConfig() Config {
	return Config{
		Port:        port.DefaultConfig(),
		Speed:       winkeyer.SpeedRange{MinWPM: 10, RangeWPM: 20},
		JoinTimeout: DefaultJoinTimeout,
	}
}

// Controller owns the session lifecycle. It is safe for concurrent use; a
// link fault and any number of Disconnect calls tear the session down exactly
// once, and once Disconnect returns no key is held.
type Controller struct {
	mu      sync.Mutex
	state   State
	session *port.Session
	run     *runState

	injector keyer.Injector
	events   telemetry.Publisher
	logger   logger.Logger
	stats    *counters
}

// runState belongs to one Open session. Each session gets its own tracker and
// dispatcher, so a reader that outlives its join cannot reach the next one.
type runState struct {
	tracker     *keyer.Tracker
	dispatcher  *keyer.Dispatcher
	cancel      context.CancelFunc
	loopDone    chan struct{}
	done        chan struct{}
	teardown    chan struct{}
	joinTimeout time.Duration
	closeWait   time.Duration
}

// NewController creates a Closed controller driving injector. events and log
// may be nil.
func NewController(injector keyer.Injector, events telemetry.Publisher, log logger.Logger) (*Controller, error) {
	if log == nil {
		log = logger.Default()
	}
	if events == nil {
		events = telemetry.Discard
	}
	if injector == nil {
		return nil, keyer.ErrInjectorRequired
	}
	return &Controller{
		injector: injector,
		events:   events,
		logger:   log,
		stats:    &counters{},
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done returns a channel closed when the current session reaches Closed,
// whether by Disconnect or by a fault. It is already closed when there is no
// session.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.run.done
}

// Stats returns the counters of the current or most recent session.
func (c *Controller) Stats() Stats {
	s := c.stats.snapshot()
	if d, ok := c.events.(dropCounter); ok {
		s.Dropped = d.Dropped()
	}
	return s
}

// Firmware returns the version byte of the open session.
func (c *Controller) Firmware() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0, false
	}
	return c.session.Firmware()
}

func (c *Controller) setState(s State) {
	c.state = s
	c.logger.Debug("state", "state", s)
	c.events.Publish(telemetry.State(s.String()))
}

// Connect opens path, runs the handshake and starts the reader. ctx bounds the
// handshake only. On failure the state returns to Closed.
func (c *Controller) Connect(ctx context.Context, path string, cfg Config) error {
	if err := cfg.Speed.Validate(); err != nil {
		return err
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.Port.Logger == nil {
		cfg.Port.Logger = c.logger
	}

	c.mu.Lock()
	if c.state != Closed {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, st)
	}
	c.setState(Opening)
	c.mu.Unlock()

	c.logger.Info("connecting", "port", path)
	session, err := port.Open(ctx, path, cfg.Port)
	if err != nil {
		c.mu.Lock()
		c.setState(Closed)
		c.mu.Unlock()
		c.logger.Error("connect failed", "port", path, "error", err)
		c.events.Publish(telemetry.Fault(err))
		return err
	}

	dispatcher, err := keyer.NewDispatcher(c.injector, c.logger.With("component", "dispatcher"))
	if err != nil {
		_ = session.Close()
		c.mu.Lock()
		c.setState(Closed)
		c.mu.Unlock()
		return err
	}
	tracker := keyer.NewTracker()
	c.stats.reset(time.Now())

	loop := NewReaderLoop(session, tracker, dispatcher, cfg.Speed, c.events, c.logger)
	loop.stats = c.stats

	loopCtx, cancel := context.WithCancel(context.Background())
	run := &runState{
		tracker:     tracker,
		dispatcher:  dispatcher,
		cancel:      cancel,
		loopDone:    make(chan struct{}),
		done:        make(chan struct{}),
		joinTimeout: cfg.JoinTimeout,
		// join, then Close may wait a few read timeouts for the I/O lock and
		// the host close writes
		closeWait: cfg.JoinTimeout + 8*cfg.Port.ReadTimeout + cfg.Port.CloseDrain + time.Second,
	}

	c.mu.Lock()
	c.session = session
	c.run = run
	c.setState(Open)
	c.mu.Unlock()

	go c.supervise(loopCtx, loop, run)
	return nil
}

// supervise runs the reader and tears the session down if it stops on its own.
func (c *Controller) supervise(ctx context.Context, loop *ReaderLoop, run *runState) {
	err := loop.Run(ctx)
	close(run.loopDone)
	if err == nil {
		return
	}
	c.logger.Error("session fault", "error", err)
	c.events.Publish(telemetry.Fault(err))
	if session, ok := c.beginTeardown(run); ok {
		c.finishTeardown(session, run)
	}
}

// Disconnect tears the session down and returns once no key is held and the
// link is closed. It is a no-op when Closed; while another teardown is in
// progress it waits for that one.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	switch c.state {
	case Closed:
		c.mu.Unlock()
		return nil
	case Opening:
		c.mu.Unlock()
		return fmt.Errorf("%w: disconnect while %s", ErrInvalidState, Opening)
	case Closing:
		run := c.run
		c.mu.Unlock()
		return c.waitTeardown(run)
	}
	run := c.run
	c.mu.Unlock()

	session, ok := c.beginTeardown(run)
	if !ok {
		// a fault got there first
		return c.waitTeardown(run)
	}
	c.finishTeardown(session, run)
	return nil
}

func (c *Controller) waitTeardown(run *runState) error {
	if run == nil {
		return nil
	}
	c.mu.Lock()
	teardown := run.teardown
	c.mu.Unlock()
	if teardown == nil {
		return nil
	}
	t := time.NewTimer(run.closeWait)
	defer t.Stop()
	select {
	case <-teardown:
		return nil
	case <-t.C:
		return fmt.Errorf("teardown still running after %s", run.closeWait)
	}
}

// beginTeardown moves Open to Closing. Only the caller that gets ok=true runs
// finishTeardown.
func (c *Controller) beginTeardown(run *runState) (*port.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open || c.run != run {
		return nil, false
	}
	run.teardown = make(chan struct{})
	c.setState(Closing)
	return c.session, true
}

func (c *Controller) finishTeardown(session *port.Session, run *runState) {
	run.cancel()
	t := time.NewTimer(run.joinTimeout)
	select {
	case <-run.loopDone:
	case <-t.C:
		c.logger.Warn("reader did not stop in time, releasing keys anyway", "timeout", run.joinTimeout)
	}
	t.Stop()

	if err := run.dispatcher.ForceReleaseAll(); err != nil {
		c.logger.Warn("force release", "error", err)
		c.events.Publish(telemetry.Warning(err))
	}
	for _, ev := range run.tracker.Reset() {
		c.events.Publish(telemetry.Key(ev.Contact.String(), ev.Edge.String(), ev.Time))
	}

	// Close logs its own failures
	_ = session.Close()

	c.stats.stop(time.Now())
	c.Stats().Log(c.logger)

	c.mu.Lock()
	c.session = nil
	c.setState(Closed)
	close(run.teardown)
	close(run.done)
	c.mu.Unlock()
}

// SetSidetoneMuted mutes or restores the keyer sidetone on the open session.
func (c *Controller) SetSidetoneMuted(muted bool) error {
	session, err := c.openSession("set sidetone")
	if err != nil {
		return err
	}
	if err := session.SetSidetoneMuted(muted); err != nil {
		c.logger.Warn("sidetone write failed", "error", err)
		c.events.Publish(telemetry.Warning(err))
		return err
	}
	c.logger.Info("sidetone", "muted", muted)
	return nil
}

// SetSwapPaddles swaps or unswaps the paddles on the open session.
func (c *Controller) SetSwapPaddles(swap bool) error {
	session, err := c.openSession("swap paddles")
	if err != nil {
		return err
	}
	if err := session.SetSwapPaddles(swap); err != nil {
		c.logger.Warn("mode write failed", "error", err)
		c.events.Publish(telemetry.Warning(err))
		return err
	}
	c.logger.Info("paddles", "swapped", swap)
	return nil
}

// Muted reports whether the open session has the sidetone muted.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.Muted()
}

// Swapped reports whether the open session has the paddles swapped.
func (c *Controller) Swapped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.Swapped()
}

func (c *Controller) openSession(op string) (*port.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open {
		return nil, fmt.Errorf("%w: %s while %s", ErrInvalidState, op, c.state)
	}
	return c.session, nil
}
