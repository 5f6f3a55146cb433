package lifecycle

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/capacity"
	"github.com/Pd-Patel-dev/Waypool-sub000/earnings"
	"github.com/Pd-Patel-dev/Waypool-sub000/outbox"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

// Notification types sent to riders and drivers.
const (
	NotifyBookingRequested  = "booking_requested"
	NotifyBookingConfirmed  = "booking_confirmed"
	NotifyBookingRejected   = "booking_rejected"
	NotifyRideStarted       = "ride_started"
	NotifyPassengerPickedUp = "passenger_picked_up"
	NotifyRideCompleted     = "ride_completed"
	NotifyRideCancelled     = "ride_cancelled"
)

// CompletedRejection is the reason recorded on pending bookings that were
// never decided before their ride completed.
const CompletedRejection = "ride completed"

// liveRides are the statuses considered by the duplicate check.
var liveRides = []ride.Status{
	ride.StatusDraft,
	ride.StatusScheduled,
	ride.StatusInProgress,
	ride.StatusCompleted,
}

func (s *Service) CreateRide(ctx context.Context, req ride.Request) (r ride.Ride, err error) {
	ctx, done := s.start(ctx, "create_ride", attribute.String("driver_id", req.DriverID))
	defer done(&err)

	r, err = req.Build(uuid.New(), s.policy.Location, s.now())
	if err != nil {
		return ride.Ride{}, fromRideValidation(err)
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockDriver(ctx, r.DriverID); err != nil {
			return err
		}
		existing, err := tx.RidesByDriver(ctx, r.DriverID, liveRides...)
		if err != nil {
			return err
		}
		if dup, ok := ride.DuplicateOf(existing, r, s.policy.DuplicateTolerance, s.policy.DuplicateWindow); ok {
			return &ConflictError{RideID: dup.ID, kind: ErrDuplicateRide}
		}
		if r.Status == ride.StatusScheduled {
			if c, ok := ride.ScheduleConflict(existing, r.ID, r.DepartureAt, s.policy.ScheduleSeparation); ok {
				return &ConflictError{RideID: c.ID, kind: ErrConflictingSchedule}
			}
		}
		return tx.InsertRide(ctx, &r)
	})
	if err != nil {
		return ride.Ride{}, err
	}
	return r, nil
}

// PublishRide moves a draft to scheduled. The scheduling conflict check
// that drafts skip at creation runs here.
func (s *Service) PublishRide(ctx context.Context, rideID uuid.UUID, driverID string) (r ride.Ride, err error) {
	ctx, done := s.start(ctx, "publish_ride", attribute.String("ride_id", rideID.String()))
	defer done(&err)

	now := s.now()
	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockDriver(ctx, driverID); err != nil {
			return err
		}
		r, err = s.ownedRide(ctx, tx, rideID, driverID)
		if err != nil {
			return err
		}
		if r.Status != ride.StatusDraft {
			return rideState(r, "publish")
		}
		if !r.DepartureAt.After(now) {
			return &ValidationError{Field: "departure", Reason: "must be in the future"}
		}
		existing, err := tx.RidesByDriver(ctx, driverID, ride.StatusScheduled, ride.StatusInProgress)
		if err != nil {
			return err
		}
		if c, ok := ride.ScheduleConflict(existing, r.ID, r.DepartureAt, s.policy.ScheduleSeparation); ok {
			return &ConflictError{RideID: c.ID, kind: ErrConflictingSchedule}
		}
		if r.Status, err = r.Status.Transition(ride.StatusScheduled); err != nil {
			return rideState(r, "publish")
		}
		r.UpdatedAt = now
		return tx.UpdateRide(ctx, r)
	})
	if err != nil {
		return ride.Ride{}, err
	}
	return r, nil
}

func (s *Service) StartRide(ctx context.Context, rideID uuid.UUID, driverID string) (err error) {
	ctx, done := s.start(ctx, "start_ride", attribute.String("ride_id", rideID.String()))
	defer done(&err)

	now := s.now()
	return s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockDriver(ctx, driverID); err != nil {
			return err
		}
		r, err := s.ownedRide(ctx, tx, rideID, driverID)
		if err != nil {
			return err
		}
		if r.Status != ride.StatusScheduled {
			return rideState(r, "start")
		}

		active, err := tx.RidesByDriver(ctx, driverID, ride.StatusInProgress)
		if err != nil {
			return err
		}
		for _, a := range active {
			if a.ID != r.ID {
				return &ConflictError{RideID: a.ID, kind: ErrConflictingActiveRide}
			}
		}

		confirmed, err := tx.BookingsByRide(ctx, r.ID, booking.StatusConfirmed)
		if err != nil {
			return err
		}
		if s.policy.RequirePassengerToStart && len(confirmed) == 0 {
			return ErrNoConfirmedBookings
		}

		if r.Status, err = r.Status.Transition(ride.StatusInProgress); err != nil {
			return rideState(r, "start")
		}
		r.UpdatedAt = now
		if err := tx.UpdateRide(ctx, r); err != nil {
			return err
		}

		events := make([]outbox.Event, 0, len(confirmed))
		for _, b := range confirmed {
			events = append(events, outbox.Notify(now, b.RiderID, NotifyRideStarted, map[string]string{
				"rideId":    r.ID.String(),
				"bookingId": b.ID.String(),
			}))
		}
		return tx.Enqueue(ctx, events...)
	})
}

// CompleteRide finishes an in-progress ride at the driver's reported
// location and returns the gross earnings snapshot. A second call fails
// with ErrInvalidState.
func (s *Service) CompleteRide(ctx context.Context, rideID uuid.UUID, driverID string, at ride.Point) (gross earnings.Cents, err error) {
	ctx, done := s.start(ctx, "complete_ride", attribute.String("ride_id", rideID.String()))
	defer done(&err)

	if err := ride.ValidatePoint("location", at); err != nil {
		return 0, fromRideValidation(err)
	}

	now := s.now()
	err = s.store.InTx(ctx, func(tx Tx) error {
		r, err := s.ownedRide(ctx, tx, rideID, driverID)
		if err != nil {
			return err
		}
		if r.Status != ride.StatusInProgress {
			return rideState(r, "complete")
		}

		bookings, err := tx.BookingsByRide(ctx, r.ID, booking.StatusConfirmed, booking.StatusPending)
		if err != nil {
			return err
		}
		outstanding := 0
		for _, b := range bookings {
			if b.Status == booking.StatusConfirmed && !b.PickedUp() {
				outstanding++
			}
		}
		if outstanding > 0 {
			return &NotPickedUpError{Outstanding: outstanding}
		}

		if !s.policy.GeofenceTestMode {
			d := ride.Distance(at, r.Destination().Point)
			if d > s.policy.GeofenceRadius {
				return &TooFarError{DistanceMeters: d, RadiusMeters: s.policy.GeofenceRadius}
			}
		}

		gross = earnings.Gross(earnings.Cents(r.PricePerSeat), bookings)
		if r.Status, err = r.Status.Transition(ride.StatusCompleted); err != nil {
			return rideState(r, "complete")
		}
		r.TotalEarnings = sql.NullInt64{Int64: int64(gross), Valid: true}
		r.UpdatedAt = now
		if err := tx.UpdateRide(ctx, r); err != nil {
			return err
		}

		var events []outbox.Event
		for _, b := range bookings {
			event := booking.EventRideCompleted
			if b.Status == booking.StatusPending {
				event = booking.EventReject
			}
			if b.Status, err = b.Status.Apply(event); err != nil {
				return err
			}
			notice := NotifyRideCompleted
			switch b.Status {
			case booking.StatusCompleted:
				if b.HeldPayment() {
					events = append(events, outbox.Capture(now, b.ID, b.PaymentReference.String))
				}
			case booking.StatusRejected:
				b.Rejection = sql.NullString{String: CompletedRejection, Valid: true}
				notice = NotifyBookingRejected
				if b.HeldPayment() {
					events = append(events, outbox.Refund(now, b.ID, b.PaymentReference.String))
				}
			}
			b.UpdatedAt = now
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			events = append(events, outbox.Notify(now, b.RiderID, notice, map[string]string{
				"rideId":    r.ID.String(),
				"bookingId": b.ID.String(),
			}))
		}
		return tx.Enqueue(ctx, events...)
	})
	if err != nil {
		return 0, err
	}
	return gross, nil
}

// CancelRide cancels the ride and every open booking on it, giving the
// seats of confirmed bookings back to the ledger.
func (s *Service) CancelRide(ctx context.Context, rideID uuid.UUID, driverID string) (err error) {
	ctx, done := s.start(ctx, "cancel_ride", attribute.String("ride_id", rideID.String()))
	defer done(&err)

	now := s.now()
	return s.store.InTx(ctx, func(tx Tx) error {
		r, err := s.ownedRide(ctx, tx, rideID, driverID)
		if err != nil {
			return err
		}
		if r.Status, err = r.Status.Transition(ride.StatusCancelled); err != nil {
			return rideState(r, "cancel")
		}

		bookings, err := tx.BookingsByRide(ctx, r.ID, booking.StatusConfirmed, booking.StatusPending)
		if err != nil {
			return err
		}
		var events []outbox.Event
		for _, b := range bookings {
			if b.Status == booking.StatusConfirmed {
				if err := capacity.Release(&r, b.NumberOfSeats); err != nil {
					return err
				}
			}
			if b.Status, err = b.Status.Apply(booking.EventRideCancelled); err != nil {
				return err
			}
			if b.HeldPayment() {
				events = append(events, outbox.Refund(now, b.ID, b.PaymentReference.String))
			}
			b.UpdatedAt = now
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			events = append(events, outbox.Notify(now, b.RiderID, NotifyRideCancelled, map[string]string{
				"rideId":    r.ID.String(),
				"bookingId": b.ID.String(),
			}))
		}

		r.UpdatedAt = now
		if err := tx.UpdateRide(ctx, r); err != nil {
			return err
		}
		return tx.Enqueue(ctx, events...)
	})
}

// RideEarnings returns the fee breakdown of a ride. Completed rides use
// their stored gross; others project it from current confirmed bookings.
func (s *Service) RideEarnings(ctx context.Context, rideID uuid.UUID, driverID string) (b earnings.Breakdown, err error) {
	ctx, done := s.start(ctx, "ride_earnings", attribute.String("ride_id", rideID.String()))
	defer done(&err)

	err = s.store.InTx(ctx, func(tx Tx) error {
		r, err := s.ownedRide(ctx, tx, rideID, driverID)
		if err != nil {
			return err
		}
		if r.TotalEarnings.Valid {
			completed, err := tx.BookingsByRide(ctx, r.ID, booking.StatusCompleted)
			if err != nil {
				return err
			}
			b = s.fees.Breakdown(earnings.Cents(r.TotalEarnings.Int64), len(completed))
			b.Final = true
			return nil
		}
		confirmed, err := tx.BookingsByRide(ctx, r.ID, booking.StatusConfirmed)
		if err != nil {
			return err
		}
		b = s.fees.Breakdown(earnings.Gross(earnings.Cents(r.PricePerSeat), confirmed), len(confirmed))
		return nil
	})
	return b, err
}

// ownedRide locks the ride and checks it belongs to driverID.
func (s *Service) ownedRide(ctx context.Context, tx Tx, rideID uuid.UUID, driverID string) (ride.Ride, error) {
	r, err := tx.Ride(ctx, rideID)
	if err != nil {
		return ride.Ride{}, err
	}
	if r.DriverID != driverID {
		return ride.Ride{}, fmt.Errorf("%w: ride %s", ErrForbidden, rideID)
	}
	return r, nil
}

func rideState(r ride.Ride, op string) error {
	return &StateError{Entity: "ride", Status: string(r.Status), Op: op}
}
