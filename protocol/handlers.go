package protocol

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// TestResult is the outcome of one self-test command.
type TestResult struct {
	Command  string
	Response string
	Err      error
}

// defaultHandlers returns the transition table shared by all instruments.
func defaultHandlers() map[Key]HandlerFunc {
	return map[Key]HandlerFunc{
		{StateUninitialized, EventDiscover}: handleDiscover,

		{StateCommand, EventEnter}:            handleCommandEnter,
		{StateCommand, EventGet}:              handleGet,
		{StateCommand, EventSet}:              handleSet,
		{StateCommand, EventAcquireStatus}:    handleAcquireStatus,
		{StateCommand, EventAcquireSample}:    handleAcquireSample,
		{StateCommand, EventStartAutosample}:  handleStartAutosample,
		{StateCommand, EventClockSync}:        handleClockSync,
		{StateCommand, EventStartDirect}:      handleStartDirect,
		{StateCommand, EventRunTest}:          handleRunTest,

		{StateAutosample, EventEnter}:          handleNoop,
		{StateAutosample, EventGet}:            handleGet,
		{StateAutosample, EventStopAutosample}: handleStopAutosample,

		{StateDirectAccess, EventEnter}:         handleDirectEnter,
		{StateDirectAccess, EventExecuteDirect}: handleExecuteDirect,
		{StateDirectAccess, EventStopDirect}:    handleStopDirect,

		{StateTest, EventEnter}:        handleTestEnter,
		{StateTest, EventGet}:          handleGet,
		{StateTest, EventTestComplete}: handleTestComplete,
	}
}

func handleNoop(context.Context, *Driver, any) (State, any, error) {
	return StateNone, nil, nil
}

// handleDiscover wakes the device and expects the command prompt.
func handleDiscover(ctx context.Context, d *Driver, _ any) (State, any, error) {
	if _, err := d.Execute(ctx, Exchange{}); err != nil {
		return StateNone, nil, err
	}

	return StateCommand, nil, nil
}

// handleCommandEnter restores the direct-access snapshot, if one is saved,
// and refreshes the parameter dictionary.
func handleCommandEnter(ctx context.Context, d *Driver, _ any) (State, any, error) {
	if snap := d.daSnapshot; snap != nil {
		d.daSnapshot = nil
		d.logger.Info("protocol: restoring direct access parameters", "count", len(snap))

		if err := d.caps.Params.Restore(ctx, snap, d.applyParam); err != nil {
			return StateNone, nil, err
		}
	}

	_, err := d.RunStatus(ctx)

	return StateNone, nil, err
}

// applyParam sets one parameter on the device and waits for the prompt.
func (d *Driver) applyParam(ctx context.Context, name string, value any) error {
	cmd, err := d.caps.setCommand(name, value)
	if err != nil {
		return err
	}

	_, err = d.Execute(ctx, Exchange{Command: cmd})

	return err
}

// RunStatus executes the status commands. The responses feed the parameter
// dictionary through the receive path. It must be called from a handler.
func (d *Driver) RunStatus(ctx context.Context) ([]string, error) {
	responses := make([]string, 0, len(d.caps.StatusCommands))
	for _, cmd := range d.caps.StatusCommands {
		resp, err := d.Execute(ctx, Exchange{Command: cmd})
		if err != nil {
			return responses, err
		}
		responses = append(responses, resp)
	}

	return responses, nil
}

// handleGet returns parameter values. The argument selects them: nil for
// all, a name or a list of names.
func handleGet(_ context.Context, d *Driver, arg any) (State, any, error) {
	params := d.caps.Params

	switch v := arg.(type) {
	case nil:
		return StateNone, params.GetAll(), nil

	case string:
		val, err := params.Get(v)
		return StateNone, val, err

	case []string:
		values := make(map[string]any, len(v))
		for _, name := range v {
			val, err := params.Get(name)
			if err != nil {
				return StateNone, nil, err
			}
			values[name] = val
		}

		return StateNone, values, nil

	default:
		return StateNone, nil, fmt.Errorf("%w: get expects a name or names, got %T", ErrInvalidArgument, arg)
	}
}

// handleSet applies a map of parameter values. Every value is validated
// before the first command is sent; the sets run in name order and the
// dictionary is refreshed afterwards.
func handleSet(ctx context.Context, d *Driver, arg any) (State, any, error) {
	values, ok := arg.(map[string]any)
	if !ok || len(values) == 0 {
		return StateNone, nil, fmt.Errorf("%w: set expects a non-empty map[string]any, got %T", ErrInvalidArgument, arg)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)

	cmds := make([]string, 0, len(names))
	for _, name := range names {
		cmd, err := d.caps.setCommand(name, values[name])
		if err != nil {
			return StateNone, nil, err
		}
		cmds = append(cmds, cmd)
	}

	for i, cmd := range cmds {
		if _, err := d.Execute(ctx, Exchange{Command: cmd}); err != nil {
			return StateNone, nil, err
		}

		if err := d.caps.Params.Set(names[i], values[names[i]]); err != nil {
			return StateNone, nil, err
		}
	}

	_, err := d.RunStatus(ctx)

	return StateNone, nil, err
}

func handleAcquireStatus(ctx context.Context, d *Driver, _ any) (State, any, error) {
	if len(d.caps.StatusCommands) == 0 {
		return StateNone, nil, fmt.Errorf("%w: %s has no status command", ErrNotSupported, d.caps.Name)
	}

	responses, err := d.RunStatus(ctx)

	return StateNone, responses, err
}

func handleAcquireSample(ctx context.Context, d *Driver, _ any) (State, any, error) {
	if d.caps.SampleCommand == "" {
		return StateNone, nil, fmt.Errorf("%w: %s has no sample command", ErrNotSupported, d.caps.Name)
	}

	resp, err := d.Execute(ctx, Exchange{Command: d.caps.SampleCommand})

	return StateNone, resp, err
}

func handleStartAutosample(ctx context.Context, d *Driver, _ any) (State, any, error) {
	if d.caps.StartCommand == "" {
		return StateNone, nil, fmt.Errorf("%w: %s has no start command", ErrNotSupported, d.caps.Name)
	}

	if _, err := d.Execute(ctx, Exchange{Command: d.caps.StartCommand, Terminal: d.caps.autosamplePrompt()}); err != nil {
		return StateNone, nil, err
	}

	return StateAutosample, nil, nil
}

func handleStopAutosample(ctx context.Context, d *Driver, _ any) (State, any, error) {
	if d.caps.StopCommand == "" {
		return StateNone, nil, fmt.Errorf("%w: %s has no stop command", ErrNotSupported, d.caps.Name)
	}

	if _, err := d.Execute(ctx, Exchange{Command: d.caps.StopCommand}); err != nil {
		return StateNone, nil, err
	}

	return StateCommand, nil, nil
}

// handleClockSync sets the device clock to the argument time, or to the
// current UTC time without one.
func handleClockSync(ctx context.Context, d *Driver, arg any) (State, any, error) {
	cs := d.caps.ClockSync
	if cs.Command == "" || cs.Layout == "" {
		return StateNone, nil, fmt.Errorf("%w: %s has no clock sync command", ErrNotSupported, d.caps.Name)
	}

	t := time.Now().UTC()
	if arg != nil {
		at, ok := arg.(time.Time)
		if !ok {
			return StateNone, nil, fmt.Errorf("%w: clock sync expects time.Time, got %T", ErrInvalidArgument, arg)
		}
		t = at.UTC()
	}

	cmd := cs.Command + "=" + t.Format(cs.Layout)
	_, err := d.Execute(ctx, Exchange{Command: cmd})

	return StateNone, cmd, err
}

// handleStartDirect saves the direct-access parameters before the operator
// takes over the device.
func handleStartDirect(_ context.Context, d *Driver, _ any) (State, any, error) {
	snap, err := d.caps.Params.Snapshot()
	if err != nil {
		return StateNone, nil, err
	}
	d.daSnapshot = snap

	return StateDirectAccess, snap, nil
}

func handleDirectEnter(_ context.Context, d *Driver, _ any) (State, any, error) {
	d.sentCmds.Reset()
	d.echoTail = nil
	d.chunker.Reset()

	return StateNone, nil, nil
}

func handleExecuteDirect(_ context.Context, d *Driver, arg any) (State, any, error) {
	var data []byte
	switch v := arg.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return StateNone, nil, fmt.Errorf("%w: direct access expects []byte or string, got %T", ErrInvalidArgument, arg)
	}

	if len(data) == 0 {
		return StateNone, nil, nil
	}

	return StateNone, nil, d.executeDirect(data)
}

func handleStopDirect(_ context.Context, d *Driver, _ any) (State, any, error) {
	d.flushDirect()

	return StateCommand, nil, nil
}

func handleRunTest(_ context.Context, d *Driver, _ any) (State, any, error) {
	if len(d.caps.TestCommands) == 0 {
		return StateNone, nil, fmt.Errorf("%w: %s has no test commands", ErrNotSupported, d.caps.Name)
	}

	return StateTest, nil, nil
}

// handleTestEnter runs every test command and raises TestComplete with the
// results. A failing test does not stop the remaining ones.
func handleTestEnter(ctx context.Context, d *Driver, _ any) (State, any, error) {
	results := make([]TestResult, 0, len(d.caps.TestCommands))
	for _, cmd := range d.caps.TestCommands {
		resp, err := d.Execute(ctx, Exchange{Command: cmd})
		results = append(results, TestResult{Command: cmd, Response: resp, Err: err})
	}

	d.Raise(EventTestComplete, results)

	return StateNone, results, nil
}

func handleTestComplete(_ context.Context, d *Driver, arg any) (State, any, error) {
	if results, ok := arg.([]TestResult); ok {
		for _, r := range results {
			if r.Err != nil {
				d.logger.Warn("protocol: self test failed", "command", r.Command, "error", r.Err)
			}
		}
	}

	return StateCommand, arg, nil
}
