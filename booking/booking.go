package booking

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Booking struct {
	ID      uuid.UUID `db:"id"`
	RideID  uuid.UUID `db:"ride_id"`
	RiderID string    `db:"rider_id"`
	// NumberOfSeats is fixed at creation.
	NumberOfSeats int `db:"number_of_seats"`

	Status       Status         `db:"status"`
	PickupStatus PickupStatus   `db:"pickup_status"`
	PickedUpAt   sql.NullTime   `db:"picked_up_at"`
	Rejection    sql.NullString `db:"rejection_reason"`

	PinHash        sql.NullString `db:"pin_hash"`
	PinCipher      sql.NullString `db:"pin_cipher"`
	PinExpiresAt   sql.NullTime   `db:"pin_expires_at"`
	PinAttempts    int            `db:"pin_attempts"`
	PinLockedUntil sql.NullTime   `db:"pin_locked_until"`

	PaymentReference sql.NullString `db:"payment_reference"`
	PaymentStatus    PaymentStatus  `db:"payment_status"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Billable reports whether the booking's seats count against the ride's
// capacity and earnings.
func (b Booking) Billable() bool {
	return b.Status == StatusConfirmed || b.Status == StatusCompleted
}

func (b Booking) PickedUp() bool {
	return b.PickupStatus == PickupPickedUp
}

// HeldPayment reports whether an authorization is still waiting to be
// captured or released.
func (b Booking) HeldPayment() bool {
	return b.PaymentStatus == PaymentAuthorized && b.PaymentReference.Valid
}
