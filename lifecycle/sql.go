package lifecycle

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/outbox"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

// PostgresStore runs lifecycle transactions on Postgres. Locking reads use
// SELECT ... FOR UPDATE on the default read committed isolation.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t pgTx) LockDriver(ctx context.Context, driverID string) error {
	return ride.LockDriver(ctx, t.tx, driverID)
}

func (t pgTx) Ride(ctx context.Context, id uuid.UUID) (ride.Ride, error) {
	return ride.GetForUpdate(ctx, t.tx, id)
}

func (t pgTx) RidesByDriver(ctx context.Context, driverID string, statuses ...ride.Status) ([]ride.Ride, error) {
	return ride.ByDriver(ctx, t.tx, driverID, statuses...)
}

func (t pgTx) InsertRide(ctx context.Context, r *ride.Ride) error {
	return ride.Insert(ctx, t.tx, r)
}

func (t pgTx) UpdateRide(ctx context.Context, r ride.Ride) error {
	return ride.Update(ctx, t.tx, r)
}

func (t pgTx) PeekBooking(ctx context.Context, id uuid.UUID) (booking.Booking, error) {
	return booking.Get(ctx, t.tx, id)
}

func (t pgTx) Booking(ctx context.Context, id uuid.UUID) (booking.Booking, error) {
	return booking.GetForUpdate(ctx, t.tx, id)
}

func (t pgTx) BookingsByRide(ctx context.Context, rideID uuid.UUID, statuses ...booking.Status) ([]booking.Booking, error) {
	return booking.ByRideForUpdate(ctx, t.tx, rideID, statuses...)
}

// InsertBooking reports a clash on the open-booking-per-rider index as
// ErrDuplicateBooking.
func (t pgTx) InsertBooking(ctx context.Context, b *booking.Booking) error {
	err := booking.Insert(ctx, t.tx, b)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicateBooking
	}
	return err
}

func (t pgTx) UpdateBooking(ctx context.Context, b booking.Booking) error {
	return booking.Update(ctx, t.tx, b)
}

func (t pgTx) Enqueue(ctx context.Context, events ...outbox.Event) error {
	return outbox.Insert(ctx, t.tx, events...)
}
