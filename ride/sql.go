package ride

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("ride not found")

// GetForUpdate fetches a ride and holds its row lock until q's transaction
// ends.
func GetForUpdate(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (Ride, error) {
	var r Ride
	err := sqlx.GetContext(ctx, q, &r, getForUpdateQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotFound
	}
	return r, err
}

const getForUpdateQuery = `SELECT * FROM rides WHERE id = $1 FOR UPDATE`

// ByDriver lists a driver's rides in the given statuses, ordered by
// departure.
func ByDriver(ctx context.Context, q sqlx.QueryerContext, driverID string, statuses ...Status) ([]Ride, error) {
	var rides []Ride
	err := sqlx.SelectContext(ctx, q, &rides, byDriverQuery, driverID, statusStrings(statuses))
	return rides, err
}

const byDriverQuery = `
SELECT * FROM rides
WHERE driver_id = $1
  AND status = ANY($2)
ORDER BY departure_at ASC
`

func Insert(ctx context.Context, e sqlx.ExtContext, r *Ride) error {
	_, err := sqlx.NamedExecContext(ctx, e, insertQuery, r)
	return err
}

const insertQuery = `
INSERT INTO rides (
    id, driver_id,
    origin_address, origin_city, origin_state, origin_lat, origin_lng,
    destination_address, destination_city, destination_state, destination_lat, destination_lng,
    departure_at, recurrence_pattern, recurrence_end_date,
    total_seats, available_seats, price_per_seat, status, total_earnings,
    created_at, updated_at
) VALUES (
    :id, :driver_id,
    :origin_address, :origin_city, :origin_state, :origin_lat, :origin_lng,
    :destination_address, :destination_city, :destination_state, :destination_lat, :destination_lng,
    :departure_at, :recurrence_pattern, :recurrence_end_date,
    :total_seats, :available_seats, :price_per_seat, :status, :total_earnings,
    :created_at, :updated_at
)
`

// Update writes the mutable columns of a ride. Route, schedule and
// capacity are fixed at creation.
func Update(ctx context.Context, e sqlx.ExtContext, r Ride) error {
	res, err := sqlx.NamedExecContext(ctx, e, updateQuery, r)
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
UPDATE rides
SET status = :status,
    available_seats = :available_seats,
    total_earnings = :total_earnings,
    updated_at = :updated_at
WHERE id = :id
`

// LockDriver serialises schedule-sensitive work for one driver until q's
// transaction ends.
func LockDriver(ctx context.Context, e sqlx.ExecerContext, driverID string) error {
	_, err := e.ExecContext(ctx, lockDriverQuery, driverID)
	return err
}

const lockDriverQuery = `SELECT pg_advisory_xact_lock(hashtext('ride-driver:' || $1))`

func statusStrings(statuses []Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
