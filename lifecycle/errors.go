package lifecycle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/capacity"
	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

var (
	ErrForbidden             = errors.New("not allowed to act on this resource")
	ErrValidation            = errors.New("invalid request")
	ErrInvalidState          = errors.New("operation not allowed in current state")
	ErrConflictingSchedule   = errors.New("ride departs too close to another scheduled ride")
	ErrDuplicateRide         = errors.New("ride duplicates an existing ride")
	ErrConflictingActiveRide = errors.New("driver already has a ride in progress")
	ErrNoConfirmedBookings   = errors.New("ride has no confirmed bookings")
	ErrNotPickedUp           = errors.New("not all passengers have been picked up")
	ErrTooFar                = errors.New("driver is too far from the destination")
	ErrDuplicateBooking      = errors.New("rider already has an open booking on this ride")
	ErrPaymentAuthorization  = errors.New("payment authorization failed")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StateError names the entity whose status blocked the operation.
type StateError struct {
	Entity string
	Status string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: %s is %s", e.Op, e.Entity, e.Status)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ConflictError points at the existing ride that caused a conflict.
type ConflictError struct {
	RideID uuid.UUID
	kind   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: ride %s", e.kind, e.RideID)
}

func (e *ConflictError) Is(target error) bool {
	return target == e.kind
}

// ConflictingRide returns the id of the ride named by a conflict error.
func ConflictingRide(err error) (uuid.UUID, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.RideID, true
	}
	return uuid.Nil, false
}

type NotPickedUpError struct {
	Outstanding int
}

func (e *NotPickedUpError) Error() string {
	return fmt.Sprintf("%d passengers not picked up", e.Outstanding)
}

func (e *NotPickedUpError) Is(target error) bool {
	return target == ErrNotPickedUp
}

type TooFarError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("%.0fm from destination, must be within %.0fm", e.DistanceMeters, e.RadiusMeters)
}

func (e *TooFarError) Is(target error) bool {
	return target == ErrTooFar
}

// fromRideValidation lifts a ride validation failure into this package's
// ValidationError so callers only match one type.
func fromRideValidation(err error) error {
	var ve *ride.ValidationError
	if errors.As(err, &ve) {
		return &ValidationError{Field: ve.Field, Reason: ve.Reason}
	}
	return err
}

// domainErrors are the expected outcomes of a lifecycle operation on valid
// input: the caller asked for something the current state does not allow.
var domainErrors = []error{
	ErrInvalidState,
	ErrConflictingSchedule,
	ErrDuplicateRide,
	ErrConflictingActiveRide,
	ErrNoConfirmedBookings,
	ErrNotPickedUp,
	ErrTooFar,
	ErrDuplicateBooking,
	ErrPaymentAuthorization,
	ride.ErrNotFound,
	booking.ErrNotFound,
	booking.ErrAlreadyConfirmed,
	booking.ErrAlreadyRejected,
	booking.ErrAlreadyCancelled,
	booking.ErrInvalidTransition,
	capacity.ErrInsufficientCapacity,
	pickup.ErrAlreadyPickedUp,
	pickup.ErrNotIssued,
	pickup.ErrExpired,
	pickup.ErrLocked,
	pickup.ErrInvalidPIN,
	pickup.ErrMalformed,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
