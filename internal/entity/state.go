package entity

import "fmt"

// State is the user-consumable lifecycle state of a domain. It does not
// map one-to-one onto the raw power states reported by the hypervisor;
// StateFromPower performs that translation.
type State string

// Domain lifecycle states.
const (
	StateUnknown  State = "Unknown"
	StateFailed   State = "Failed"
	StateHalted   State = "Halted"
	StateStarting State = "Starting"
	StateStarted  State = "Started"
	StateHalting  State = "Halting"
)

// PropState is the name of the distinguished lifecycle property on
// domain entities.
const PropState = "state"

// States lists all lifecycle states.
var States = []State{
	StateUnknown, StateFailed, StateHalted,
	StateStarting, StateStarted, StateHalting,
}

// ParseState validates a lifecycle state string.
func ParseState(s string) (State, error) {
	for _, st := range States {
		if State(s) == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// CanTransition reports whether a domain's state may move from cur to
// next. It is a pure predicate; callers that attempt an illegal
// transition must reject the write and report the error.
//
// Valid transitions:
//
//	Unknown  → Started | Halting   (workaround for transient "unknown")
//	Failed   → Starting
//	Halted   → Starting
//	Starting → Failed | Started | Halted
//	Started  → Failed | Halting
//	Halting  → Failed | Halted
//
// A transition to Failed is always allowed. Self-transitions are
// rejected, as is any transition back into Unknown. An empty cur means
// the domain has no recorded state yet; any valid target is accepted.
func CanTransition(cur, next State) bool {
	if cur == next {
		return false
	}
	if next == StateUnknown {
		return false
	}
	if cur == "" {
		_, err := ParseState(string(next))
		return err == nil
	}
	if next == StateFailed {
		return true
	}
	switch cur {
	case StateUnknown:
		return next == StateStarted || next == StateHalting
	case StateFailed, StateHalted:
		return next == StateStarting
	case StateStarting:
		return next == StateStarted || next == StateHalted
	case StateStarted:
		return next == StateHalting
	case StateHalting:
		return next == StateHalted
	}
	return false
}

// StateFromPower translates a raw hypervisor power state into a
// lifecycle state. Transient and NA both collapse into Unknown; crashed
// maps to Failed. Unrecognised power states are Unknown.
func StateFromPower(power string) State {
	switch power {
	case "Crashed", "crashed":
		return StateFailed
	case "Halted", "halted":
		return StateHalted
	case "Running", "running":
		return StateStarted
	case "Transient", "transient", "NA", "na":
		return StateUnknown
	default:
		return StateUnknown
	}
}
