// Package memstore is an in-memory lifecycle.Store and outbox.Source.
// Transactions are serialised by a single mutex and see their own writes;
// nothing they write is visible to others until fn returns nil.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
	"github.com/Pd-Patel-dev/Waypool-sub000/outbox"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

// lease matches the Postgres outbox claim lease.
const lease = time.Minute

type Store struct {
	mu       sync.Mutex
	rides    map[uuid.UUID]ride.Ride
	bookings map[uuid.UUID]booking.Booking
	events   []outbox.Event

	failEnqueue error
}

func New() *Store {
	return &Store{
		rides:    make(map[uuid.UUID]ride.Ride),
		bookings: make(map[uuid.UUID]booking.Booking),
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx lifecycle.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		store:    s,
		rides:    make(map[uuid.UUID]ride.Ride),
		bookings: make(map[uuid.UUID]booking.Booking),
	}
	if err := fn(t); err != nil {
		return err
	}
	for id, r := range t.rides {
		s.rides[id] = r
	}
	for id, b := range t.bookings {
		s.bookings[id] = b
	}
	s.events = append(s.events, t.events...)
	return nil
}

// FailNextEnqueue makes the next Enqueue return err, aborting its
// transaction.
func (s *Store) FailNextEnqueue(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failEnqueue = err
}

// Seed stores rides and bookings as if they had been committed.
func (s *Store) Seed(rides []ride.Ride, bookings []booking.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rides {
		s.rides[r.ID] = r
	}
	for _, b := range bookings {
		s.bookings[b.ID] = b
	}
}

func (s *Store) Ride(id uuid.UUID) (ride.Ride, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	return r, ok
}

func (s *Store) Booking(id uuid.UUID) (booking.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

// Bookings returns every booking of a ride regardless of status.
func (s *Store) Bookings(rideID uuid.UUID) []booking.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Booking
	for _, b := range s.bookings {
		if b.RideID == rideID {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

// Events returns every outbox event ever committed, in commit order.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *Store) Pending(_ context.Context, now time.Time, limit int) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Event
	for i := range s.events {
		if len(out) == limit {
			break
		}
		e := &s.events[i]
		if e.DeliveredAt.Valid || e.DeadAt.Valid || e.NextAttemptAt.After(now) {
			continue
		}
		e.NextAttemptAt = now.Add(lease)
		out = append(out, *e)
	}
	return out, nil
}

func (s *Store) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.mark(id, func(e *outbox.Event) {
		e.Attempts++
		e.DeliveredAt.Time, e.DeliveredAt.Valid = at, true
		e.LastError.Valid = false
	})
}

func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, reason string, retryAt time.Time) error {
	return s.mark(id, func(e *outbox.Event) {
		e.Attempts++
		e.LastError.String, e.LastError.Valid = reason, true
		e.NextAttemptAt = retryAt
	})
}

func (s *Store) MarkDead(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	return s.mark(id, func(e *outbox.Event) {
		e.Attempts++
		e.LastError.String, e.LastError.Valid = reason, true
		e.DeadAt.Time, e.DeadAt.Valid = at, true
	})
}

func (s *Store) mark(id uuid.UUID, fn func(e *outbox.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			fn(&s.events[i])
			return nil
		}
	}
	return nil
}

type tx struct {
	store    *Store
	rides    map[uuid.UUID]ride.Ride
	bookings map[uuid.UUID]booking.Booking
	events   []outbox.Event
}

// LockDriver is a no-op: the store mutex already serialises transactions.
func (t *tx) LockDriver(context.Context, string) error {
	return nil
}

func (t *tx) Ride(_ context.Context, id uuid.UUID) (ride.Ride, error) {
	if r, ok := t.rides[id]; ok {
		return r, nil
	}
	if r, ok := t.store.rides[id]; ok {
		return r, nil
	}
	return ride.Ride{}, ride.ErrNotFound
}

func (t *tx) RidesByDriver(_ context.Context, driverID string, statuses ...ride.Status) ([]ride.Ride, error) {
	var out []ride.Ride
	for id := range t.rideIDs() {
		r, _ := t.Ride(context.Background(), id)
		if r.DriverID == driverID && slices.Contains(statuses, r.Status) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b ride.Ride) int {
		return a.DepartureAt.Compare(b.DepartureAt)
	})
	return out, nil
}

func (t *tx) rideIDs() map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{}, len(t.store.rides)+len(t.rides))
	for id := range t.store.rides {
		ids[id] = struct{}{}
	}
	for id := range t.rides {
		ids[id] = struct{}{}
	}
	return ids
}

func (t *tx) InsertRide(_ context.Context, r *ride.Ride) error {
	t.rides[r.ID] = *r
	return nil
}

func (t *tx) UpdateRide(ctx context.Context, r ride.Ride) error {
	if _, err := t.Ride(ctx, r.ID); err != nil {
		return err
	}
	t.rides[r.ID] = r
	return nil
}

func (t *tx) PeekBooking(ctx context.Context, id uuid.UUID) (booking.Booking, error) {
	return t.Booking(ctx, id)
}

func (t *tx) Booking(_ context.Context, id uuid.UUID) (booking.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		return b, nil
	}
	if b, ok := t.store.bookings[id]; ok {
		return b, nil
	}
	return booking.Booking{}, booking.ErrNotFound
}

func (t *tx) BookingsByRide(_ context.Context, rideID uuid.UUID, statuses ...booking.Status) ([]booking.Booking, error) {
	seen := make(map[uuid.UUID]bool)
	var out []booking.Booking
	add := func(b booking.Booking) {
		if seen[b.ID] {
			return
		}
		seen[b.ID] = true
		if b.RideID == rideID && slices.Contains(statuses, b.Status) {
			out = append(out, b)
		}
	}
	for _, b := range t.bookings {
		add(b)
	}
	for _, b := range t.store.bookings {
		add(b)
	}
	sortBookings(out)
	return out, nil
}

func (t *tx) InsertBooking(_ context.Context, b *booking.Booking) error {
	t.bookings[b.ID] = *b
	return nil
}

func (t *tx) UpdateBooking(ctx context.Context, b booking.Booking) error {
	old, err := t.Booking(ctx, b.ID)
	if err != nil {
		return err
	}
	b.NumberOfSeats = old.NumberOfSeats
	t.bookings[b.ID] = b
	return nil
}

func (t *tx) Enqueue(_ context.Context, events ...outbox.Event) error {
	if err := t.store.failEnqueue; err != nil {
		t.store.failEnqueue = nil
		return err
	}
	t.events = append(t.events, events...)
	return nil
}

func sortBookings(bs []booking.Booking) {
	slices.SortFunc(bs, func(a, b booking.Booking) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}
