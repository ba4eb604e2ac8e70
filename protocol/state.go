package protocol

import "strconv"

// State is a protocol state of an instrument driver.
type State uint32

// Protocol states. StateNone is not a real state: a handler returns it to
// stay in the current state.
const (
	StateNone State = iota
	StateUninitialized
	StateCommand
	StateAutosample
	StateDirectAccess
	StateTest
)

var stateNames = [...]string{
	StateNone:          "NONE",
	StateUninitialized: "UNINITIALIZED",
	StateCommand:       "COMMAND",
	StateAutosample:    "AUTOSAMPLE",
	StateDirectAccess:  "DIRECT_ACCESS",
	StateTest:          "TEST",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "State(" + strconv.Itoa(int(s)) + ")"
}

// ParseState converts a state name as produced by State.String.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name && State(s) != StateNone {
			return State(s), true
		}
	}

	return StateNone, false
}

// Event is a symbolic trigger dispatched to the driver.
type Event uint32

const (
	EventEnter Event = iota
	EventExit
	EventDiscover
	EventAcquireSample
	EventStartAutosample
	EventStopAutosample
	EventGet
	EventSet
	EventClockSync
	EventAcquireStatus
	EventStartDirect
	EventStopDirect
	EventExecuteDirect
	EventRunTest
	EventTestComplete
)

var eventNames = [...]string{
	EventEnter:           "ENTER",
	EventExit:            "EXIT",
	EventDiscover:        "DISCOVER",
	EventAcquireSample:   "ACQUIRE_SAMPLE",
	EventStartAutosample: "START_AUTOSAMPLE",
	EventStopAutosample:  "STOP_AUTOSAMPLE",
	EventGet:             "GET",
	EventSet:             "SET",
	EventClockSync:       "CLOCK_SYNC",
	EventAcquireStatus:   "ACQUIRE_STATUS",
	EventStartDirect:     "START_DIRECT",
	EventStopDirect:      "STOP_DIRECT",
	EventExecuteDirect:   "EXECUTE_DIRECT",
	EventRunTest:         "RUN_TEST",
	EventTestComplete:    "TEST_COMPLETE",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}

	return "Event(" + strconv.Itoa(int(e)) + ")"
}

// ParseEvent converts an event name as produced by Event.String.
func ParseEvent(name string) (Event, bool) {
	for e, n := range eventNames {
		if n == name {
			return Event(e), true
		}
	}

	return 0, false
}

// Key identifies one entry of the transition table.
type Key struct {
	State State
	Event Event
}

func (k Key) String() string {
	return k.State.String() + "/" + k.Event.String()
}
