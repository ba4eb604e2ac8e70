package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/arloliu/go-instrument/internal/pool"
)

// Poll performs one bounded read of the channel and processes whatever
// arrived. A read timeout is not an error.
func (d *Driver) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.opMu.Lock()
	defer d.opMu.Unlock()

	data, err := d.ch.Read(d.cfg.pollTimeout)
	if err != nil {
		return err
	}

	if len(data) > 0 {
		d.receive(data)
	}

	return nil
}

// Run serializes posted events and channel polling on the calling goroutine
// until ctx is done or the channel is closed.
//
// Only one Run may be active per driver. Events submitted with Post or
// Submit are dispatched between polls; unsolicited device output is
// processed while the driver is idle.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	d.logger.Info("protocol: driver loop started", "state", d.State())
	defer d.logger.Info("protocol: driver loop stopped")

	for {
		cont, err := d.loopIteration(ctx)
		if !cont {
			return err
		}
	}
}

// loopIteration handles a posted event first, then polls the channel if
// nothing is queued.
func (d *Driver) loopIteration(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()

	case req := <-d.events:
		state, value, err := d.Dispatch(ctx, req.event, req.arg)
		if req.result != nil {
			req.result <- eventResult{state: state, value: value, err: err}
		} else if err != nil {
			d.notifyError(err)
		}

		return true, nil

	default:
		// nothing queued, poll the channel
	}

	if err := d.Poll(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}

		if isClosedError(err) {
			d.logger.Debug("protocol: channel closed during poll")
			return false, nil
		}

		d.logger.Warn("protocol: poll failed", "error", err)
		d.notifyError(err)

		return false, err
	}

	return true, nil
}

// Post queues an event for the running loop without waiting. Failures are
// reported to the error handlers.
func (d *Driver) Post(event Event, arg any) error {
	select {
	case d.events <- &eventRequest{event: event, arg: arg}:
		return nil
	default:
		return ErrEventQueueFull
	}
}

// Submit queues an event for the running loop and waits for its result, at
// most timeout. A non-positive timeout waits for ctx only.
func (d *Driver) Submit(ctx context.Context, event Event, arg any, timeout time.Duration) (State, any, error) {
	req := &eventRequest{event: event, arg: arg, result: make(chan eventResult, 1)}

	select {
	case d.events <- req:
	default:
		return d.State(), nil, ErrEventQueueFull
	}

	if timeout <= 0 {
		select {
		case res := <-req.result:
			return res.state, res.value, res.err
		case <-ctx.Done():
			return d.State(), nil, ctx.Err()
		}
	}

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case res := <-req.result:
		return res.state, res.value, res.err
	case <-ctx.Done():
		return d.State(), nil, ctx.Err()
	case <-timer.C:
		return d.State(), nil, fmt.Errorf("%w: %s: event %s not handled within %v",
			ErrCommunicationTimeout, d.caps.Name, event, timeout)
	}
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}
