package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/outbox"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

// Store runs fn as one atomic unit. Everything fn writes through tx is
// committed together if fn returns nil and discarded otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the persistence view of one transaction. Methods documented as
// locking hold an exclusive row lock until the transaction ends. Callers
// lock a ride before any of its bookings.
type Tx interface {
	// LockDriver serialises schedule checks for one driver.
	LockDriver(ctx context.Context, driverID string) error

	// Ride fetches and locks a ride.
	Ride(ctx context.Context, id uuid.UUID) (ride.Ride, error)
	RidesByDriver(ctx context.Context, driverID string, statuses ...ride.Status) ([]ride.Ride, error)
	InsertRide(ctx context.Context, r *ride.Ride) error
	UpdateRide(ctx context.Context, r ride.Ride) error

	// PeekBooking fetches a booking without locking it, to learn its ride.
	PeekBooking(ctx context.Context, id uuid.UUID) (booking.Booking, error)
	// Booking fetches and locks a booking.
	Booking(ctx context.Context, id uuid.UUID) (booking.Booking, error)
	// BookingsByRide fetches and locks a ride's bookings in the given
	// statuses.
	BookingsByRide(ctx context.Context, rideID uuid.UUID, statuses ...booking.Status) ([]booking.Booking, error)
	InsertBooking(ctx context.Context, b *booking.Booking) error
	UpdateBooking(ctx context.Context, b booking.Booking) error

	// Enqueue adds side-effect events to the outbox.
	Enqueue(ctx context.Context, events ...outbox.Event) error
}

// Payments authorizes a hold on the rider's payment method when a booking
// is requested. Capture and refund run later through the outbox.
type Payments interface {
	Authorize(ctx context.Context, auth Authorization) (reference string, err error)
	Refund(ctx context.Context, reference string) error
}

type Authorization struct {
	BookingID     uuid.UUID
	RiderID       string
	AmountCents   int64
	PaymentMethod string
}
