package queue

import (
	"fmt"
)

// Event triggers a state transition of an entry
type Event string

const (
	// EventClaim moves a due entry into processing under a lease
	EventClaim Event = "claim"
	// EventDeliver records a successful (or skipped as stale) delivery
	EventDeliver Event = "deliver"
	// EventFail records a failed delivery
	EventFail Event = "fail"
	// EventTimeout returns an entry with an expired lease to the pending pool
	EventTimeout Event = "timeout"
)

// transition is a single edge of the entry lifecycle
type transition struct {
	from State
	to   State
}

// lifecycle is the complete set of legal transitions:
//
//	PENDING ──claim──► PROCESSING ──deliver──► DELIVERED
//	   ▲                   │
//	   └─────timeout───────┤
//	                       └──────fail──────► FAILED
var lifecycle = map[Event]transition{
	EventClaim:   {from: StatePending, to: StateProcessing},
	EventDeliver: {from: StateProcessing, to: StateDelivered},
	EventFail:    {from: StateProcessing, to: StateFailed},
	EventTimeout: {from: StateProcessing, to: StatePending},
}

// From returns the state an entry must be in for the event to apply
func (e Event) From() State {
	return lifecycle[e].from
}

// To returns the state the event leads to
func (e Event) To() State {
	return lifecycle[e].to
}

// TransitionError indicates that an event does not apply to the current state of an entry
type TransitionError struct {
	State State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s entry in state %s", ErrUnexpectedState, e.Event, e.State)
}

func (e *TransitionError) Unwrap() error {
	return ErrUnexpectedState
}

// Transition returns the state reached by firing event from the given state
func Transition(from State, event Event) (State, error) {
	t, ok := lifecycle[event]
	if !ok || t.from != from {
		return from, &TransitionError{State: from, Event: event}
	}
	return t.to, nil
}

// ConflictError explains why a guarded update of current for event matched nothing.
// attempt is the claim that expected to hold the entry, 0 skips that check.
func ConflictError(current *Entry, event Event, attempt int) error {
	if attempt > 0 && current.State == event.From() && current.Attempts != attempt {
		return fmt.Errorf("entry %s: %w: attempt %d, current %d", current.ID, ErrLeaseLost, attempt, current.Attempts)
	}
	return fmt.Errorf("entry %s: %w", current.ID, &TransitionError{State: current.State, Event: event})
}
