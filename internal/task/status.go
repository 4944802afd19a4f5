package task

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTransition is returned when a status change is not an edge of the
// task state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// Event drives a task from one status to another.
type Event string

const (
	EventSucceeded Event = "succeeded" // execution returned success
	EventFailed    Event = "failed"    // execution failed or errored
	EventReopen    Event = "reopen"
	EventApprove   Event = "approve"
	EventReject    Event = "reject"
)

// ParseEvent maps a user-supplied name to an Event.
func ParseEvent(s string) (Event, error) {
	e := Event(strings.ToLower(strings.TrimSpace(s)))
	switch e {
	case EventSucceeded, EventFailed, EventReopen, EventApprove, EventReject:
		return e, nil
	}
	return "", fmt.Errorf("unknown event %q", s)
}

// Apply returns the status reached by applying e to s.
func (s Status) Apply(e Event) (Status, error) {
	var next Status
	switch {
	case s == StatusPending && e == EventSucceeded:
		next = StatusCompleted
	case s == StatusPending && e == EventFailed:
		next = StatusNeedsReview
	case s == StatusCompleted && e == EventReopen:
		next = StatusPending
	case s == StatusNeedsReview && e == EventApprove:
		next = StatusCompleted
	case s == StatusNeedsReview && e == EventReject:
		next = StatusPending
	default:
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
	}
	return next, nil
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusCompleted || to == StatusNeedsReview
	case StatusCompleted:
		return to == StatusPending
	case StatusNeedsReview:
		return to == StatusCompleted || to == StatusPending
	default:
		return false
	}
}
