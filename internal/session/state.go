package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of an agent session. Error and Closed are
// terminal and absorbing: once entered, no transition leaves them.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Prompting
	StateError
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Prompting:
		return "prompting"
	case StateError:
		return "error"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateError || s == Closed
}

// ErrInvalidState is wrapped by InvalidStateError for errors.Is checks.
var ErrInvalidState = errors.New("invalid session state")

// InvalidStateError reports an operation attempted in a state that does not
// permit it.
type InvalidStateError struct {
	SessionID string
	State     State
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("session %s: cannot %s in state %s", e.SessionID, e.Op, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// validNext encodes the allowed transitions. Terminal states are reachable
// from anywhere and appear implicitly in transition().
var validNext = map[State][]State{
	Uninitialized: {Initializing},
	Initializing:  {Ready},
	Ready:         {Prompting},
	Prompting:     {Ready},
}

func allowed(from, to State) bool {
	if to == StateError || to == Closed {
		return !from.Terminal() || from == to
	}
	for _, n := range validNext[from] {
		if n == to {
			return true
		}
	}
	return false
}
