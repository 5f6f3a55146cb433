// Package capacity is the seat ledger of a ride. It is the only code that
// writes Ride.AvailableSeats, and it must only be called on a ride row that
// is locked by the transaction that also writes the matching booking status.
package capacity

import (
	"errors"
	"fmt"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

var (
	ErrInsufficientCapacity = errors.New("insufficient seats available")
	ErrInvalidSeats         = errors.New("seat count must be positive")
	ErrOutOfBalance         = errors.New("seat ledger out of balance")
)

// InsufficientError carries what was asked for and what was left.
type InsufficientError struct {
	Requested int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("requested %d seats, %d available", e.Requested, e.Available)
}

func (e *InsufficientError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

// Reserve takes seats from r, failing without change if not enough remain.
func Reserve(r *ride.Ride, seats int) error {
	if seats < 1 {
		return ErrInvalidSeats
	}
	if r.AvailableSeats < seats {
		return &InsufficientError{Requested: seats, Available: r.AvailableSeats}
	}
	r.AvailableSeats -= seats
	return nil
}

// Release gives seats back to r, never exceeding its total.
func Release(r *ride.Ride, seats int) error {
	if seats < 1 {
		return ErrInvalidSeats
	}
	r.AvailableSeats += seats
	if r.AvailableSeats > r.TotalSeats {
		r.AvailableSeats = r.TotalSeats
	}
	return nil
}

// Claimed sums the seats of the billable bookings.
func Claimed(bookings []booking.Booking) int {
	n := 0
	for _, b := range bookings {
		if b.Billable() {
			n += b.NumberOfSeats
		}
	}
	return n
}

// Check verifies availableSeats + claimed == totalSeats for r and the full
// set of its bookings.
func Check(r ride.Ride, bookings []booking.Booking) error {
	claimed := Claimed(bookings)
	if r.AvailableSeats < 0 || r.AvailableSeats+claimed != r.TotalSeats {
		return fmt.Errorf("%w: ride %s has %d available + %d claimed of %d",
			ErrOutOfBalance, r.ID, r.AvailableSeats, claimed, r.TotalSeats)
	}
	return nil
}
