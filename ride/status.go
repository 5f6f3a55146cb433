package ride

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid ride status transition")

// transitions lists every status reachable from a given status. Statuses
// missing from the map are terminal.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is allowed, else a *TransitionError.
func (s Status) Transition(next Status) (Status, error) {
	if !s.CanTransitionTo(next) {
		return s, &TransitionError{From: s, To: next}
	}
	return next, nil
}

// TransitionError names the rejected move.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ride cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
