package booking

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

type PickupStatus string

const (
	PickupPending  PickupStatus = "pending"
	PickupPickedUp PickupStatus = "picked_up"
)

type PaymentStatus string

const (
	PaymentNone       PaymentStatus = "none"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Event is something that happens to a booking.
type Event string

const (
	EventAccept        Event = "accept"
	EventReject        Event = "reject"
	EventRideCancelled Event = "ride_cancelled"
	EventRideCompleted Event = "ride_completed"
)

var (
	ErrAlreadyConfirmed  = errors.New("booking already confirmed")
	ErrAlreadyRejected   = errors.New("booking already rejected")
	ErrAlreadyCancelled  = errors.New("booking already cancelled")
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventAccept:        StatusConfirmed,
		EventReject:        StatusRejected,
		EventRideCancelled: StatusCancelled,
	},
	StatusConfirmed: {
		EventRideCancelled: StatusCancelled,
		EventRideCompleted: StatusCompleted,
	},
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Apply returns the status reached by e, or the error describing why e is
// not allowed from s.
func (s Status) Apply(e Event) (Status, error) {
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	switch s {
	case StatusConfirmed:
		if e == EventAccept || e == EventReject {
			return s, ErrAlreadyConfirmed
		}
	case StatusRejected:
		return s, ErrAlreadyRejected
	case StatusCancelled:
		return s, ErrAlreadyCancelled
	}
	return s, fmt.Errorf("%w: %s on %s booking", ErrInvalidTransition, e, s)
}
