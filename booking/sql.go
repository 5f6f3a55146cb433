package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("booking not found")

// Get fetches a booking without locking it.
func Get(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (Booking, error) {
	var b Booking
	err := sqlx.GetContext(ctx, q, &b, getQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

const getQuery = `SELECT * FROM bookings WHERE id = $1`

// GetForUpdate fetches a booking and holds its row lock until q's
// transaction ends.
func GetForUpdate(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (Booking, error) {
	var b Booking
	err := sqlx.GetContext(ctx, q, &b, getForUpdateQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

const getForUpdateQuery = `SELECT * FROM bookings WHERE id = $1 FOR UPDATE`

// ByRideForUpdate locks and returns a ride's bookings in the given
// statuses, oldest first.
func ByRideForUpdate(ctx context.Context, q sqlx.QueryerContext, rideID uuid.UUID, statuses ...Status) ([]Booking, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	var bookings []Booking
	err := sqlx.SelectContext(ctx, q, &bookings, byRideForUpdateQuery, rideID, names)
	return bookings, err
}

const byRideForUpdateQuery = `
SELECT * FROM bookings
WHERE ride_id = $1
  AND status = ANY($2)
ORDER BY created_at ASC
FOR UPDATE
`

func Insert(ctx context.Context, e sqlx.ExtContext, b *Booking) error {
	_, err := sqlx.NamedExecContext(ctx, e, insertQuery, b)
	return err
}

const insertQuery = `
INSERT INTO bookings (
    id, ride_id, rider_id, number_of_seats,
    status, pickup_status, picked_up_at, rejection_reason,
    pin_hash, pin_cipher, pin_expires_at, pin_attempts, pin_locked_until,
    payment_reference, payment_status,
    created_at, updated_at
) VALUES (
    :id, :ride_id, :rider_id, :number_of_seats,
    :status, :pickup_status, :picked_up_at, :rejection_reason,
    :pin_hash, :pin_cipher, :pin_expires_at, :pin_attempts, :pin_locked_until,
    :payment_reference, :payment_status,
    :created_at, :updated_at
)
`

// Update writes every mutable column. number_of_seats is never rewritten.
func Update(ctx context.Context, e sqlx.ExtContext, b Booking) error {
	res, err := sqlx.NamedExecContext(ctx, e, updateQuery, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const updateQuery = `
UPDATE bookings
SET status = :status,
    pickup_status = :pickup_status,
    picked_up_at = :picked_up_at,
    rejection_reason = :rejection_reason,
    pin_hash = :pin_hash,
    pin_cipher = :pin_cipher,
    pin_expires_at = :pin_expires_at,
    pin_attempts = :pin_attempts,
    pin_locked_until = :pin_locked_until,
    payment_reference = :payment_reference,
    payment_status = :payment_status,
    updated_at = :updated_at
WHERE id = :id
`
