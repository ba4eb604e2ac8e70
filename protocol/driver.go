package protocol

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/internal/queue"
	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/param"
)

type raisedEvent struct {
	event Event
	arg   any
}

type eventRequest struct {
	event  Event
	arg    any
	result chan eventResult
}

type eventResult struct {
	state State
	value any
	err   error
}

// Driver runs the protocol state machine of one instrument.
//
// Dispatch and Poll are serialized by an internal lock: the channel is
// half-duplex and at most one exchange is active at any time. Handlers run
// with the lock held and may call Execute, Write and Raise, but must not
// call Dispatch.
type Driver struct {
	ch     Channel
	caps   *Capabilities
	cfg    *config
	logger logger.Logger

	handlers map[Key]HandlerFunc
	chunker  *chunker.Chunker

	state atomic.Uint32

	opMu       sync.Mutex
	pending    *exchangeState
	sentCmds   *queue.SliceQueue[[]byte]
	echoTail   []byte
	daSnapshot param.Snapshot
	raised     []raisedEvent

	events  chan *eventRequest
	running atomic.Bool

	metrics   DriverMetrics
	closeOnce sync.Once
}

// NewDriver creates a driver for the instrument described by caps over ch.
// The driver starts in StateUninitialized.
//
// The parameter dictionary in caps holds live device values, so every driver
// needs its own capability set, e.g. a fresh sbe54.Capabilities() per
// connection. A dictionary still owned by an open driver is rejected with
// ErrCapabilitiesInUse.
func NewDriver(ch Channel, caps *Capabilities, opts ...Option) (*Driver, error) {
	if ch == nil {
		return nil, fmt.Errorf("protocol: nil channel")
	}
	if err := caps.validate(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.id == "" {
		cfg.id = caps.Name
	}

	l := cfg.logger.With("driver", cfg.id)

	chunkerOpts := append([]chunker.Option{chunker.WithLogger(l)}, cfg.chunkerOpts...)
	c, err := chunker.New(caps.Matchers, chunkerOpts...)
	if err != nil {
		return nil, fmt.Errorf("protocol: %s: %w", caps.Name, err)
	}

	if !caps.Params.Claim() {
		return nil, fmt.Errorf("%w: %s", ErrCapabilitiesInUse, cfg.id)
	}

	d := &Driver{
		ch:       ch,
		caps:     caps,
		cfg:      cfg,
		logger:   l,
		handlers: defaultHandlers(),
		chunker:  c,
		sentCmds: queue.NewSliceQueue[[]byte](8),
		events:   make(chan *eventRequest, cfg.eventQueueSize),
	}

	for key, h := range caps.Handlers {
		if h == nil {
			delete(d.handlers, key)
		} else {
			d.handlers[key] = h
		}
	}

	d.state.Store(uint32(StateUninitialized))

	return d, nil
}

// Name returns the instrument name.
func (d *Driver) Name() string {
	return d.caps.Name
}

// ID returns the driver identifier set with WithID.
func (d *Driver) ID() string {
	return d.cfg.id
}

// State returns the current protocol state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Params returns the instrument's parameter dictionary.
func (d *Driver) Params() *param.Dictionary {
	return d.caps.Params
}

// Capabilities returns the capability set the driver was built with.
func (d *Driver) Capabilities() *Capabilities {
	return d.caps
}

// Metrics returns the driver's counters.
func (d *Driver) Metrics() *DriverMetrics {
	return &d.metrics
}

// Handles reports whether the transition table has an entry for event in
// state.
func (d *Driver) Handles(state State, event Event) bool {
	_, ok := d.handlers[Key{State: state, Event: event}]
	return ok
}

// Keys returns the entries of the transition table.
func (d *Driver) Keys() []Key {
	keys := make([]Key, 0, len(d.handlers))
	for k := range maps.Keys(d.handlers) {
		keys = append(keys, k)
	}

	return keys
}

// Raise queues an event to be dispatched after the running handler returns.
// It may only be called from a handler.
func (d *Driver) Raise(event Event, arg any) {
	d.raised = append(d.raised, raisedEvent{event: event, arg: arg})
}

// Dispatch delivers event with arg to the handler registered for the
// current state.
//
// An event with no handler in the current state returns an
// *InvalidTransitionError and leaves the state unchanged. A failing handler
// also leaves the state unchanged. Events raised by handlers are dispatched
// before Dispatch returns; their failures go to the error handlers.
func (d *Driver) Dispatch(ctx context.Context, event Event, arg any) (State, any, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	_, value, err := d.dispatch(ctx, event, arg)

	for len(d.raised) > 0 {
		ev := d.raised[0]
		d.raised = d.raised[1:]

		if _, _, rerr := d.dispatch(ctx, ev.event, ev.arg); rerr != nil {
			d.notifyError(rerr)
		}
	}
	d.raised = nil

	return d.State(), value, err
}

func (d *Driver) dispatch(ctx context.Context, event Event, arg any) (State, any, error) {
	cur := d.State()

	h, ok := d.handlers[Key{State: cur, Event: event}]
	if !ok {
		d.metrics.incInvalidTransitionCount()
		err := &InvalidTransitionError{Driver: d.caps.Name, State: cur, Event: event}
		d.logger.Error("protocol: invalid transition", "state", cur, "event", event, "error", err)

		return cur, nil, err
	}

	d.logger.Debug("protocol: dispatch", "state", cur, "event", event)

	next, value, err := h(ctx, d, arg)
	if err != nil {
		d.logger.Warn("protocol: handler failed", "state", cur, "event", event, "error", err)
		return cur, value, err
	}

	if next != StateNone && next != cur {
		if err := d.transition(ctx, cur, next); err != nil {
			return d.State(), value, err
		}
	}

	return d.State(), value, nil
}

// transition runs the exit handler of cur, switches to next, runs the enter
// handler of next and notifies the state change handlers. An enter handler
// failure is reported but the state stays next.
func (d *Driver) transition(ctx context.Context, cur State, next State) error {
	if h, ok := d.handlers[Key{State: cur, Event: EventExit}]; ok {
		if _, _, err := h(ctx, d, nil); err != nil {
			d.logger.Warn("protocol: exit handler failed", "state", cur, "error", err)
		}
	}

	d.state.Store(uint32(next))
	d.metrics.incTransitionCount()
	d.logger.Info("protocol: state changed", "from", cur, "to", next)

	var enterErr error
	if h, ok := d.handlers[Key{State: next, Event: EventEnter}]; ok {
		if _, _, err := h(ctx, d, nil); err != nil {
			d.logger.Warn("protocol: enter handler failed", "state", next, "error", err)
			enterErr = fmt.Errorf("protocol: enter %s: %w", next, err)
		}
	}

	for _, sh := range d.cfg.stateHandlers {
		sh(cur, next)
	}

	return enterErr
}

// Write sends data to the device unframed.
func (d *Driver) Write(data []byte) error {
	if err := d.ch.Write(data); err != nil {
		return err
	}
	d.metrics.addBytesSend(len(data))

	return nil
}

// Close closes the underlying channel and releases the parameter
// dictionary. A running loop observes the closed channel on its next poll.
func (d *Driver) Close() error {
	d.closeOnce.Do(d.caps.Params.Release)

	return d.ch.Close()
}

func (d *Driver) notifyError(err error) {
	for _, eh := range d.cfg.errorHandlers {
		eh(err)
	}
}
