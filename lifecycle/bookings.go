package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/capacity"
	"github.com/Pd-Patel-dev/Waypool-sub000/outbox"
	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

type BookingRequest struct {
	RideID  uuid.UUID
	RiderID string
	Seats   int
	// PaymentMethod is the rider's saved payment method. When empty, or when
	// the service has no Payments, no authorization is taken.
	PaymentMethod string
}

// RequestBooking creates a pending booking. Seats are not reserved until
// the driver accepts. When a payment method is given the full fare is
// authorized first, outside of any transaction, and released again if the
// booking cannot be stored.
func (s *Service) RequestBooking(ctx context.Context, req BookingRequest) (b booking.Booking, err error) {
	ctx, done := s.start(ctx, "request_booking", attribute.String("ride_id", req.RideID.String()))
	defer done(&err)

	if strings.TrimSpace(req.RiderID) == "" {
		return booking.Booking{}, &ValidationError{Field: "riderId", Reason: "required"}
	}
	if req.Seats < 1 {
		return booking.Booking{}, &ValidationError{Field: "numberOfSeats", Reason: "must be at least 1"}
	}

	id := uuid.New()
	var fare int64
	err = s.store.InTx(ctx, func(tx Tx) error {
		r, err := s.bookableRide(ctx, tx, req)
		if err != nil {
			return err
		}
		fare = r.PricePerSeat * int64(req.Seats)
		return nil
	})
	if err != nil {
		return booking.Booking{}, err
	}

	var reference string
	if s.payments != nil && req.PaymentMethod != "" && fare > 0 {
		reference, err = s.payments.Authorize(ctx, Authorization{
			BookingID:     id,
			RiderID:       req.RiderID,
			AmountCents:   fare,
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			return booking.Booking{}, fmt.Errorf("%w: %w", ErrPaymentAuthorization, err)
		}
	}

	now := s.now()
	err = s.store.InTx(ctx, func(tx Tx) error {
		r, err := s.bookableRide(ctx, tx, req)
		if err != nil {
			return err
		}
		b = booking.Booking{
			ID:            id,
			RideID:        r.ID,
			RiderID:       req.RiderID,
			NumberOfSeats: req.Seats,
			Status:        booking.StatusPending,
			PickupStatus:  booking.PickupPending,
			PaymentStatus: booking.PaymentNone,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if reference != "" {
			b.PaymentReference = sql.NullString{String: reference, Valid: true}
			b.PaymentStatus = booking.PaymentAuthorized
		}
		if err := tx.InsertBooking(ctx, &b); err != nil {
			return err
		}
		return tx.Enqueue(ctx, outbox.Notify(now, r.DriverID, NotifyBookingRequested, map[string]string{
			"rideId":    r.ID.String(),
			"bookingId": b.ID.String(),
			"seats":     fmt.Sprint(req.Seats),
		}))
	})
	if err != nil {
		if reference != "" {
			if rerr := s.payments.Refund(ctx, reference); rerr != nil {
				s.logger.ErrorContext(ctx, "failed to release payment hold",
					"booking_id", id, "reference", reference, "error", rerr)
			}
		}
		return booking.Booking{}, err
	}
	return b, nil
}

// bookableRide locks the requested ride and checks a new booking may be
// made on it. It does not reserve seats.
func (s *Service) bookableRide(ctx context.Context, tx Tx, req BookingRequest) (ride.Ride, error) {
	r, err := tx.Ride(ctx, req.RideID)
	if err != nil {
		return ride.Ride{}, err
	}
	if r.Status != ride.StatusScheduled {
		return ride.Ride{}, rideState(r, "book")
	}
	if r.DriverID == req.RiderID {
		return ride.Ride{}, fmt.Errorf("%w: drivers cannot book their own ride", ErrForbidden)
	}
	if req.Seats > r.TotalSeats {
		return ride.Ride{}, &ValidationError{
			Field:  "numberOfSeats",
			Reason: fmt.Sprintf("ride only has %d seats", r.TotalSeats),
		}
	}
	if req.Seats > r.AvailableSeats {
		return ride.Ride{}, &capacity.InsufficientError{Requested: req.Seats, Available: r.AvailableSeats}
	}
	open, err := tx.BookingsByRide(ctx, r.ID, booking.StatusPending, booking.StatusConfirmed)
	if err != nil {
		return ride.Ride{}, err
	}
	for _, b := range open {
		if b.RiderID == req.RiderID {
			return ride.Ride{}, ErrDuplicateBooking
		}
	}
	return r, nil
}

// AcceptBooking confirms a pending booking, reserves its seats and issues
// the pickup PIN. The plain PIN is returned once and never stored in clear.
func (s *Service) AcceptBooking(ctx context.Context, bookingID uuid.UUID, driverID string) (pin pickup.PIN, err error) {
	ctx, done := s.start(ctx, "accept_booking", attribute.String("booking_id", bookingID.String()))
	defer done(&err)

	now := s.now()
	err = s.store.InTx(ctx, func(tx Tx) error {
		r, b, err := s.driverBooking(ctx, tx, bookingID, driverID)
		if err != nil {
			return err
		}
		next, err := b.Status.Apply(booking.EventAccept)
		if err != nil {
			return err
		}
		if r.Status != ride.StatusScheduled {
			return rideState(r, "accept booking")
		}
		if err := capacity.Reserve(&r, b.NumberOfSeats); err != nil {
			return err
		}

		issued, err := s.pins.Issue(b.ID, now)
		if err != nil {
			return fmt.Errorf("issuing pickup pin: %w", err)
		}
		b.Status = next
		b.PickupStatus = booking.PickupPending
		b.PinHash = sql.NullString{String: issued.Hash, Valid: true}
		b.PinCipher = sql.NullString{String: issued.Cipher, Valid: true}
		b.PinExpiresAt = sql.NullTime{Time: issued.ExpiresAt, Valid: true}
		b.PinAttempts = 0
		b.PinLockedUntil = sql.NullTime{}
		b.UpdatedAt = now
		r.UpdatedAt = now

		if err := tx.UpdateRide(ctx, r); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		pin = issued.PIN
		return tx.Enqueue(ctx, outbox.Notify(now, b.RiderID, NotifyBookingConfirmed, map[string]string{
			"rideId":    r.ID.String(),
			"bookingId": b.ID.String(),
		}))
	})
	if err != nil {
		return "", err
	}
	return pin, nil
}

// RejectBooking declines a pending booking. Any payment hold is released
// through the outbox.
func (s *Service) RejectBooking(ctx context.Context, bookingID uuid.UUID, driverID, reason string) (err error) {
	ctx, done := s.start(ctx, "reject_booking", attribute.String("booking_id", bookingID.String()))
	defer done(&err)

	now := s.now()
	return s.store.InTx(ctx, func(tx Tx) error {
		r, b, err := s.driverBooking(ctx, tx, bookingID, driverID)
		if err != nil {
			return err
		}
		if b.Status, err = b.Status.Apply(booking.EventReject); err != nil {
			return err
		}
		if reason = strings.TrimSpace(reason); reason != "" {
			b.Rejection = sql.NullString{String: reason, Valid: true}
		}
		b.UpdatedAt = now

		events := []outbox.Event{
			outbox.Notify(now, b.RiderID, NotifyBookingRejected, map[string]string{
				"rideId":    r.ID.String(),
				"bookingId": b.ID.String(),
				"reason":    reason,
			}),
		}
		if b.HeldPayment() {
			events = append(events, outbox.Refund(now, b.ID, b.PaymentReference.String))
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		return tx.Enqueue(ctx, events...)
	})
}

// VerifyPickupPIN checks the PIN a rider discloses to the driver. Attempt
// counting and lockout state are committed even when the PIN is wrong.
func (s *Service) VerifyPickupPIN(ctx context.Context, bookingID uuid.UUID, driverID, candidate string) (err error) {
	ctx, done := s.start(ctx, "verify_pickup", attribute.String("booking_id", bookingID.String()))
	defer done(&err)

	now := s.now()
	var verifyErr error
	err = s.store.InTx(ctx, func(tx Tx) error {
		r, b, err := s.driverBooking(ctx, tx, bookingID, driverID)
		if err != nil {
			return err
		}
		if b.Status != booking.StatusConfirmed {
			return &StateError{Entity: "booking", Status: string(b.Status), Op: "verify pickup"}
		}
		if r.Status != ride.StatusScheduled && r.Status != ride.StatusInProgress {
			return rideState(r, "verify pickup")
		}

		rec := pinRecord(b)
		verifyErr = s.policy.Pickup.Verify(&rec, candidate, now)
		pinVerifications.WithLabelValues(verifyResult(verifyErr)).Inc()
		applyPinRecord(&b, rec)
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if verifyErr != nil {
			return nil
		}
		return tx.Enqueue(ctx, outbox.Notify(now, b.RiderID, NotifyPassengerPickedUp, map[string]string{
			"rideId":    r.ID.String(),
			"bookingId": b.ID.String(),
		}))
	})
	if err != nil {
		return err
	}
	return verifyErr
}

// RevealPickupPIN decrypts the stored PIN for the rider who owns the
// booking, for as long as it can still be used.
func (s *Service) RevealPickupPIN(ctx context.Context, bookingID uuid.UUID, riderID string) (pin pickup.PIN, err error) {
	ctx, done := s.start(ctx, "reveal_pickup_pin", attribute.String("booking_id", bookingID.String()))
	defer done(&err)

	var b booking.Booking
	err = s.store.InTx(ctx, func(tx Tx) error {
		b, err = tx.PeekBooking(ctx, bookingID)
		return err
	})
	if err != nil {
		return "", err
	}
	if b.RiderID != riderID {
		return "", fmt.Errorf("%w: booking %s", ErrForbidden, bookingID)
	}
	if b.Status != booking.StatusConfirmed {
		return "", &StateError{Entity: "booking", Status: string(b.Status), Op: "reveal pin"}
	}
	if b.PickedUp() {
		return "", pickup.ErrAlreadyPickedUp
	}
	if !b.PinCipher.Valid {
		return "", pickup.ErrNotIssued
	}
	if s.now().After(b.PinExpiresAt.Time) {
		return "", pickup.ErrExpired
	}
	return s.pins.Reveal(b.PinCipher.String, b.ID)
}

// SettlePayment records the outcome of a capture or refund carried out by
// the outbox dispatcher. Bookings whose hold was already settled are left
// alone.
func (s *Service) SettlePayment(ctx context.Context, bookingID uuid.UUID, kind outbox.Kind) (err error) {
	ctx, done := s.start(ctx, "settle_payment", attribute.String("booking_id", bookingID.String()))
	defer done(&err)

	var status booking.PaymentStatus
	switch kind {
	case outbox.KindPaymentCapture:
		status = booking.PaymentCaptured
	case outbox.KindPaymentRefund:
		status = booking.PaymentRefunded
	default:
		return fmt.Errorf("settling payment: unexpected event kind %q", kind)
	}

	now := s.now()
	return s.store.InTx(ctx, func(tx Tx) error {
		peek, err := tx.PeekBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if _, err := tx.Ride(ctx, peek.RideID); err != nil {
			return err
		}
		b, err := tx.Booking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.PaymentStatus != booking.PaymentAuthorized {
			return nil
		}
		b.PaymentStatus = status
		b.UpdatedAt = now
		return tx.UpdateBooking(ctx, b)
	})
}

// driverBooking locks a booking and its ride, ride first, and checks the
// ride belongs to driverID.
func (s *Service) driverBooking(ctx context.Context, tx Tx, bookingID uuid.UUID, driverID string) (ride.Ride, booking.Booking, error) {
	peek, err := tx.PeekBooking(ctx, bookingID)
	if err != nil {
		return ride.Ride{}, booking.Booking{}, err
	}
	r, err := tx.Ride(ctx, peek.RideID)
	if err != nil {
		return ride.Ride{}, booking.Booking{}, err
	}
	if r.DriverID != driverID {
		return ride.Ride{}, booking.Booking{}, fmt.Errorf("%w: booking %s", ErrForbidden, bookingID)
	}
	b, err := tx.Booking(ctx, bookingID)
	if err != nil {
		return ride.Ride{}, booking.Booking{}, err
	}
	return r, b, nil
}

func pinRecord(b booking.Booking) pickup.Record {
	return pickup.Record{
		Hash:        b.PinHash.String,
		ExpiresAt:   b.PinExpiresAt.Time,
		Attempts:    b.PinAttempts,
		LockedUntil: b.PinLockedUntil.Time,
		PickedUp:    b.PickedUp(),
		PickedUpAt:  b.PickedUpAt.Time,
	}
}

func applyPinRecord(b *booking.Booking, rec pickup.Record) {
	b.PinAttempts = rec.Attempts
	b.PinLockedUntil = nullTime(rec.LockedUntil)
	if rec.PickedUp {
		b.PickupStatus = booking.PickupPickedUp
		b.PickedUpAt = nullTime(rec.PickedUpAt)
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pickup.ErrInvalidPIN):
		return "invalid"
	case errors.Is(err, pickup.ErrLocked):
		return "locked"
	case errors.Is(err, pickup.ErrExpired):
		return "expired"
	case errors.Is(err, pickup.ErrMalformed):
		return "malformed"
	case errors.Is(err, pickup.ErrAlreadyPickedUp):
		return "already_picked_up"
	case errors.Is(err, pickup.ErrNotIssued):
		return "not_issued"
	}
	return "error"
}
