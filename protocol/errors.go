package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrCommunicationTimeout indicates that the expected terminal pattern did
	// not arrive before the exchange deadline. The channel stays open.
	ErrCommunicationTimeout = errors.New("protocol: communication timeout")

	// ErrCommandRejected indicates an error-shaped response to a command.
	ErrCommandRejected = errors.New("protocol: command rejected")

	// ErrInvalidTransition indicates an event that has no handler in the
	// current state.
	ErrInvalidTransition = errors.New("protocol: invalid transition")

	// ErrInvalidArgument indicates an event argument of the wrong shape.
	ErrInvalidArgument = errors.New("protocol: invalid argument")

	// ErrNotSupported indicates that the capability set lacks what an
	// operation needs, e.g. an empty sample command.
	ErrNotSupported = errors.New("protocol: not supported by instrument")

	// ErrAlreadyRunning is returned by Run when the loop is already active.
	ErrAlreadyRunning = errors.New("protocol: driver loop already running")

	// ErrEventQueueFull is returned by Post when the event queue is full.
	ErrEventQueueFull = errors.New("protocol: event queue full")

	// ErrDriverExists is returned by Registry.Register for a duplicate id.
	ErrDriverExists = errors.New("protocol: driver already registered")

	// ErrCapabilitiesInUse is returned by NewDriver for a capability set whose
	// parameter dictionary belongs to another driver.
	ErrCapabilitiesInUse = errors.New("protocol: capabilities already in use")
)

// InvalidTransitionError carries the state and event of a rejected dispatch.
type InvalidTransitionError struct {
	Driver string
	State  State
	Event  Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("protocol: invalid transition: driver %s has no handler for event %s in state %s",
		e.Driver, e.Event, e.State)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// CommandRejectedError carries the command and the device's error response.
type CommandRejectedError struct {
	Command  string
	Response string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("protocol: command %q rejected: %q", e.Command, e.Response)
}

func (e *CommandRejectedError) Unwrap() error {
	return ErrCommandRejected
}
