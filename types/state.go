//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// State is an element state.
type State uint32

// Element states.
const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

var stateNames = map[State]string{
	StateVoidPending: "VOID_PENDING",
	StateNull:        "NULL",
	StateReady:       "READY",
	StatePaused:      "PAUSED",
	StatePlaying:     "PLAYING",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN!(%d)", uint32(s))
}

// StateChange packs a transition as current<<3 | next.
type StateChange uint32

// Transition builds the StateChange from current to next.
func Transition(current, next State) StateChange {
	return StateChange(uint32(current)<<3 | uint32(next))
}

// The six transitions an element steps through.
var (
	StateChangeNullToReady     = Transition(StateNull, StateReady)
	StateChangeReadyToPaused   = Transition(StateReady, StatePaused)
	StateChangePausedToPlaying = Transition(StatePaused, StatePlaying)
	StateChangePlayingToPaused = Transition(StatePlaying, StatePaused)
	StateChangePausedToReady   = Transition(StatePaused, StateReady)
	StateChangeReadyToNull     = Transition(StateReady, StateNull)
)

// Current returns the state the transition starts from.
func (t StateChange) Current() State { return State(uint32(t) >> 3) }

// Next returns the state the transition ends in.
func (t StateChange) Next() State { return State(uint32(t) & 0x7) }

// IsValid reports whether the transition is one a peer may request:
// a single step up or down, or a same-state transition.
func (t StateChange) IsValid() bool {
	switch t {
	case StateChangeNullToReady, StateChangeReadyToPaused, StateChangePausedToPlaying,
		StateChangePlayingToPaused, StateChangePausedToReady, StateChangeReadyToNull:
		return true
	}
	return t.Current() == t.Next()
}

func (t StateChange) String() string {
	return t.Current().String() + "->" + t.Next().String()
}

// Steps returns the single-step transitions leading from current to target.
func Steps(current, target State) []StateChange {
	var out []StateChange
	for current != target {
		next := current + 1
		if target < current {
			next = current - 1
		}
		out = append(out, Transition(current, next))
		current = next
	}
	return out
}

// StateChangeReturn is the result of a state change.
type StateChangeReturn uint32

// State change results.
const (
	StateChangeFailure StateChangeReturn = iota
	StateChangeSuccess
	StateChangeAsync
	StateChangeNoPreroll
)

func (r StateChangeReturn) String() string {
	switch r {
	case StateChangeFailure:
		return "FAILURE"
	case StateChangeSuccess:
		return "SUCCESS"
	case StateChangeAsync:
		return "ASYNC"
	case StateChangeNoPreroll:
		return "NO PREROLL"
	default:
		return fmt.Sprintf("UNKNOWN!(%d)", uint32(r))
	}
}

// FlowReturn is the result of pushing a buffer.
type FlowReturn int32

// Flow results. FlowCommError is reported when the peer could not be
// reached or did not answer.
const (
	FlowCustomSuccess FlowReturn = 100
	FlowOK            FlowReturn = 0
	FlowNotLinked     FlowReturn = -1
	FlowFlushing      FlowReturn = -2
	FlowEOS           FlowReturn = -3
	FlowNotNegotiated FlowReturn = -4
	FlowError         FlowReturn = -5
	FlowNotSupported  FlowReturn = -6
	FlowCustomError   FlowReturn = -100
	FlowCommError     FlowReturn = -102
)

var flowNames = map[FlowReturn]string{
	FlowCustomSuccess: "custom-success",
	FlowOK:            "ok",
	FlowNotLinked:     "not-linked",
	FlowFlushing:      "flushing",
	FlowEOS:           "eos",
	FlowNotNegotiated: "not-negotiated",
	FlowError:         "error",
	FlowNotSupported:  "not-supported",
	FlowCustomError:   "custom-error",
	FlowCommError:     "comm-error",
}

func (f FlowReturn) String() string {
	if name, ok := flowNames[f]; ok {
		return name
	}
	return "unknown"
}
