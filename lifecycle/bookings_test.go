package lifecycle_test

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/capacity"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/notify"
	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
	"github.com/Pd-Patel-dev/Waypool-sub000/outbox"
	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

func TestRequestBooking(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)

	b := f.requestBooking(t, r.ID, "rider-1", 2)
	if b.Status != booking.StatusPending {
		t.Errorf("expected pending, got %s", b.Status)
	}
	if b.PaymentStatus != booking.PaymentAuthorized {
		t.Errorf("expected payment authorized, got %s", b.PaymentStatus)
	}
	hold, ok := f.payments.Hold(b.PaymentReference.String)
	if !ok || hold.AmountCents != 3000 {
		t.Errorf("expected a 3000 cent hold, got %+v", hold)
	}

	// Seats are only taken on accept.
	if got := f.ride(t, r.ID).AvailableSeats; got != 3 {
		t.Errorf("expected 3 seats available, got %d", got)
	}
	requested := f.events(outbox.KindNotify, lifecycle.NotifyBookingRequested)
	if len(requested) != 1 {
		t.Fatalf("expected 1 booking_requested notification, got %d", len(requested))
	}
	if n, _ := requested[0].Notification(); n.UserID != "driver-1" {
		t.Errorf("expected driver notified, got %s", n.UserID)
	}
}

func TestRequestBooking_WithoutPayment(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)

	b, err := f.svc.RequestBooking(ctx, lifecycle.BookingRequest{RideID: r.ID, RiderID: "rider-1", Seats: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.PaymentStatus != booking.PaymentNone || b.PaymentReference.Valid {
		t.Errorf("expected no payment, got %s %q", b.PaymentStatus, b.PaymentReference.String)
	}
}

func TestRequestBooking_Rejected(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	f.requestBooking(t, r.ID, "rider-1", 1)

	draft, err := f.svc.CreateRide(ctx, ride.Request{
		DriverID:      "driver-2",
		Origin:        austin,
		Destination:   dallas,
		DepartureDate: "03/20/2026",
		DepartureTime: "8:30 AM",
		TotalSeats:    3,
		Draft:         true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		req     lifecycle.BookingRequest
		wantErr error
	}{
		{"no rider", lifecycle.BookingRequest{RideID: r.ID, Seats: 1}, lifecycle.ErrValidation},
		{"zero seats", lifecycle.BookingRequest{RideID: r.ID, RiderID: "rider-2"}, lifecycle.ErrValidation},
		{"more than the ride has", lifecycle.BookingRequest{RideID: r.ID, RiderID: "rider-2", Seats: 4}, lifecycle.ErrValidation},
		{"own ride", lifecycle.BookingRequest{RideID: r.ID, RiderID: "driver-1", Seats: 1}, lifecycle.ErrForbidden},
		{"second open booking", lifecycle.BookingRequest{RideID: r.ID, RiderID: "rider-1", Seats: 1}, lifecycle.ErrDuplicateBooking},
		{"draft ride", lifecycle.BookingRequest{RideID: draft.ID, RiderID: "rider-2", Seats: 1}, lifecycle.ErrInvalidState},
		{"unknown ride", lifecycle.BookingRequest{RideID: uuid.New(), RiderID: "rider-2", Seats: 1}, ride.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.PaymentMethod = "pm_card_visa"
			_, err := f.svc.RequestBooking(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// Only the first booking ever reached the gateway.
	if refs := f.payments.References(); len(refs) != 1 {
		t.Errorf("expected 1 authorization, got %d", len(refs))
	}
}

func TestRequestBooking_InsufficientCapacity(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	f.confirmedRider(t, r, "rider-1", 2)

	_, err := f.svc.RequestBooking(ctx, lifecycle.BookingRequest{RideID: r.ID, RiderID: "rider-2", Seats: 2})
	var ie *capacity.InsufficientError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}
	if ie.Requested != 2 || ie.Available != 1 {
		t.Errorf("unexpected error detail: %+v", ie)
	}
}

func TestRequestBooking_PaymentDeclined(t *testing.T) {
	f := newFixture(t)
	f.payments.Decline = true
	r := f.createRide(t, "driver-1", "8:30 AM", 3)

	_, err := f.svc.RequestBooking(ctx, lifecycle.BookingRequest{
		RideID:        r.ID,
		RiderID:       "rider-1",
		Seats:         1,
		PaymentMethod: "pm_card_chargeDeclined",
	})
	if !errors.Is(err, lifecycle.ErrPaymentAuthorization) {
		t.Fatalf("expected ErrPaymentAuthorization, got %v", err)
	}
	if n := len(f.store.Bookings(r.ID)); n != 0 {
		t.Errorf("expected no booking stored, got %d", n)
	}
}

func TestRequestBooking_ReleasesHoldOnFailure(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	f.store.FailNextEnqueue(errors.New("outbox unavailable"))

	_, err := f.svc.RequestBooking(ctx, lifecycle.BookingRequest{
		RideID:        r.ID,
		RiderID:       "rider-1",
		Seats:         1,
		PaymentMethod: "pm_card_visa",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if n := len(f.store.Bookings(r.ID)); n != 0 {
		t.Errorf("expected no booking stored, got %d", n)
	}
	refs := f.payments.References()
	if len(refs) != 1 || !f.payments.Refunded(refs[0]) {
		t.Errorf("expected the hold released, got %v", refs)
	}
}

func TestAcceptBooking(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b := f.requestBooking(t, r.ID, "rider-1", 2)

	pin := f.accept(t, b.ID, "driver-1")
	if len(pin) != 4 || pickup.Denied(pin) {
		t.Errorf("unexpected pin %q", pin)
	}

	stored := f.booking(t, b.ID)
	if stored.Status != booking.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", stored.Status)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PinHash.String), []byte(pin)); err != nil {
		t.Errorf("stored hash does not match pin: %v", err)
	}
	if stored.PinCipher.String == string(pin) || stored.PinHash.String == string(pin) {
		t.Error("pin stored in clear")
	}
	if want := f.clock.Now().Add(pickup.DefaultTTL); !stored.PinExpiresAt.Time.Equal(want) {
		t.Errorf("expected pin expiry %s, got %s", want, stored.PinExpiresAt.Time)
	}
	if got := f.ride(t, r.ID).AvailableSeats; got != 1 {
		t.Errorf("expected 1 seat left, got %d", got)
	}
	f.assertBalanced(t, r.ID)

	if _, err := f.svc.AcceptBooking(ctx, b.ID, "driver-1"); !errors.Is(err, booking.ErrAlreadyConfirmed) {
		t.Errorf("expected ErrAlreadyConfirmed, got %v", err)
	}
	if got := f.ride(t, r.ID).AvailableSeats; got != 1 {
		t.Errorf("accepting twice must not take seats, got %d", got)
	}
}

func TestAcceptBooking_Forbidden(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b := f.requestBooking(t, r.ID, "rider-1", 1)

	if _, err := f.svc.AcceptBooking(ctx, b.ID, "driver-2"); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.AcceptBooking(ctx, uuid.New(), "driver-1"); !errors.Is(err, booking.ErrNotFound) {
		t.Errorf("expected booking.ErrNotFound, got %v", err)
	}
}

func TestAcceptBooking_OverlappingRequests(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	first := f.requestBooking(t, r.ID, "rider-1", 2)
	second := f.requestBooking(t, r.ID, "rider-2", 2)

	f.accept(t, first.ID, "driver-1")

	_, err := f.svc.AcceptBooking(ctx, second.ID, "driver-1")
	if !errors.Is(err, capacity.ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	if got := f.booking(t, second.ID).Status; got != booking.StatusPending {
		t.Errorf("expected second booking still pending, got %s", got)
	}
	if got := f.ride(t, r.ID).AvailableSeats; got != 1 {
		t.Errorf("expected 1 seat left, got %d", got)
	}
	f.assertBalanced(t, r.ID)
}

func TestAcceptBooking_Concurrent(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	a := f.requestBooking(t, r.ID, "rider-1", 2)
	b := f.requestBooking(t, r.ID, "rider-2", 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uuid.UUID{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.AcceptBooking(ctx, id, "driver-1")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, capacity.ErrInsufficientCapacity):
			t.Errorf("expected ErrInsufficientCapacity, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one accept to succeed, got %d", succeeded)
	}
	if got := f.ride(t, r.ID).AvailableSeats; got != 1 {
		t.Errorf("expected 1 seat left, got %d", got)
	}
	f.assertBalanced(t, r.ID)
}

func TestAcceptBooking_RollsBackOnOutboxFailure(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b := f.requestBooking(t, r.ID, "rider-1", 2)
	before := len(f.store.Events())

	f.store.FailNextEnqueue(errors.New("outbox unavailable"))
	if _, err := f.svc.AcceptBooking(ctx, b.ID, "driver-1"); err == nil {
		t.Fatal("expected error")
	}

	stored := f.booking(t, b.ID)
	if stored.Status != booking.StatusPending || stored.PinHash.Valid {
		t.Errorf("expected booking untouched, got %s with pin %v", stored.Status, stored.PinHash.Valid)
	}
	if got := f.ride(t, r.ID).AvailableSeats; got != 3 {
		t.Errorf("expected seats untouched, got %d", got)
	}
	if got := len(f.store.Events()); got != before {
		t.Errorf("expected no new events, got %d", got-before)
	}

	f.accept(t, b.ID, "driver-1")
	f.assertBalanced(t, r.ID)
}

func TestAcceptBooking_SkipsDeniedPIN(t *testing.T) {
	// The first draw is 1234, which must never be issued.
	f := newFixtureWithPINs(t, bytes.NewReader([]byte{0x04, 0xD2, 0x12, 0xD5}))
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b := f.requestBooking(t, r.ID, "rider-1", 1)

	pin := f.accept(t, b.ID, "driver-1")
	if pin != "4821" {
		t.Fatalf("expected 4821, got %s", pin)
	}
	hash := []byte(f.booking(t, b.ID).PinHash.String)
	if bcrypt.CompareHashAndPassword(hash, []byte("1234")) == nil {
		t.Error("denied pin was stored")
	}
}

func TestRejectBooking(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b := f.requestBooking(t, r.ID, "rider-1", 1)

	if err := f.svc.RejectBooking(ctx, b.ID, "driver-1", "  car is full  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.booking(t, b.ID)
	if stored.Status != booking.StatusRejected || stored.Rejection.String != "car is full" {
		t.Errorf("unexpected booking: %s %q", stored.Status, stored.Rejection.String)
	}
	if n := len(f.events(outbox.KindPaymentRefund, "")); n != 1 {
		t.Errorf("expected 1 refund event, got %d", n)
	}
	if n := len(f.events(outbox.KindNotify, lifecycle.NotifyBookingRejected)); n != 1 {
		t.Errorf("expected 1 rejection notice, got %d", n)
	}

	if err := f.svc.RejectBooking(ctx, b.ID, "driver-1", ""); !errors.Is(err, booking.ErrAlreadyRejected) {
		t.Errorf("expected ErrAlreadyRejected, got %v", err)
	}
	if _, err := f.svc.AcceptBooking(ctx, b.ID, "driver-1"); !errors.Is(err, booking.ErrAlreadyRejected) {
		t.Errorf("expected ErrAlreadyRejected, got %v", err)
	}

	// A rejected rider may ask again.
	f.requestBooking(t, r.ID, "rider-1", 1)
}

func TestRejectBooking_Confirmed(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b, _ := f.confirmedRider(t, r, "rider-1", 1)

	if err := f.svc.RejectBooking(ctx, b.ID, "driver-1", ""); !errors.Is(err, booking.ErrAlreadyConfirmed) {
		t.Errorf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestVerifyPickupPIN(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b, pin := f.confirmedRider(t, r, "rider-1", 1)

	if err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-1", string(pin)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := f.booking(t, b.ID)
	if !stored.PickedUp() || !stored.PickedUpAt.Time.Equal(f.clock.Now()) {
		t.Errorf("expected picked up now, got %s at %s", stored.PickupStatus, stored.PickedUpAt.Time)
	}
	if n := len(f.events(outbox.KindNotify, lifecycle.NotifyPassengerPickedUp)); n != 1 {
		t.Errorf("expected 1 pickup notice, got %d", n)
	}

	if err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-1", string(pin)); !errors.Is(err, pickup.ErrAlreadyPickedUp) {
		t.Errorf("expected ErrAlreadyPickedUp, got %v", err)
	}
}

func TestVerifyPickupPIN_Lockout(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b, pin := f.confirmedRider(t, r, "rider-1", 1)

	for i := range 5 {
		err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-1", wrongPIN)
		var invalid *pickup.InvalidPINError
		if !errors.As(err, &invalid) {
			t.Fatalf("attempt %d: expected InvalidPINError, got %v", i+1, err)
		}
		if invalid.AttemptsRemaining != 4-i {
			t.Errorf("attempt %d: expected %d remaining, got %d", i+1, 4-i, invalid.AttemptsRemaining)
		}
	}

	stored := f.booking(t, b.ID)
	if stored.PinAttempts != 5 || !stored.PinLockedUntil.Valid {
		t.Fatalf("expected failed attempts persisted, got %d attempts locked=%v", stored.PinAttempts, stored.PinLockedUntil.Valid)
	}

	err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-1", string(pin))
	if !errors.Is(err, pickup.ErrLocked) {
		t.Fatalf("expected ErrLocked with the right pin, got %v", err)
	}
	if f.booking(t, b.ID).PickedUp() {
		t.Error("locked booking must not be picked up")
	}

	f.clock.Advance(11 * time.Minute)
	if err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-1", string(pin)); err != nil {
		t.Fatalf("unexpected error after lockout: %v", err)
	}
	if n := len(f.events(outbox.KindNotify, lifecycle.NotifyPassengerPickedUp)); n != 1 {
		t.Errorf("expected a single pickup notice, got %d", n)
	}
}

func TestVerifyPickupPIN_Expired(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b, pin := f.confirmedRider(t, r, "rider-1", 1)

	f.clock.Advance(pickup.DefaultTTL + time.Minute)
	if err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-1", string(pin)); !errors.Is(err, pickup.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyPickupPIN_Rejected(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	pending := f.requestBooking(t, r.ID, "rider-1", 1)
	b, pin := f.confirmedRider(t, r, "rider-2", 1)

	if err := f.svc.VerifyPickupPIN(ctx, pending.ID, "driver-1", "4821"); !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for pending booking, got %v", err)
	}
	if err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-2", string(pin)); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-1", "12a4"); !errors.Is(err, pickup.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
	if got := f.booking(t, b.ID).PinAttempts; got != 0 {
		t.Errorf("malformed input must not count, got %d attempts", got)
	}
}

func TestRevealPickupPIN(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b, pin := f.confirmedRider(t, r, "rider-1", 1)

	got, err := f.svc.RevealPickupPIN(ctx, b.ID, "rider-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != pin {
		t.Errorf("expected %s, got %s", pin, got)
	}

	if _, err := f.svc.RevealPickupPIN(ctx, b.ID, "driver-1"); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("expected ErrForbidden for another user, got %v", err)
	}

	f.clock.Advance(pickup.DefaultTTL + time.Second)
	if _, err := f.svc.RevealPickupPIN(ctx, b.ID, "rider-1"); !errors.Is(err, pickup.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestRevealPickupPIN_AfterPickup(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	b, pin := f.confirmedRider(t, r, "rider-1", 1)
	pending := f.requestBooking(t, r.ID, "rider-2", 1)

	if _, err := f.svc.RevealPickupPIN(ctx, pending.ID, "rider-2"); !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for pending booking, got %v", err)
	}

	if err := f.svc.VerifyPickupPIN(ctx, b.ID, "driver-1", string(pin)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.RevealPickupPIN(ctx, b.ID, "rider-1"); !errors.Is(err, pickup.ErrAlreadyPickedUp) {
		t.Errorf("expected ErrAlreadyPickedUp, got %v", err)
	}
}

func TestSettlePayment_ThroughDispatcher(t *testing.T) {
	f := newFixture(t)
	r := f.createRide(t, "driver-1", "8:30 AM", 3)
	kept, pin := f.confirmedRider(t, r, "rider-1", 1)
	dropped := f.requestBooking(t, r.ID, "rider-2", 1)
	if err := f.svc.RejectBooking(ctx, dropped.ID, "driver-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.StartRide(ctx, r.ID, "driver-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.VerifyPickupPIN(ctx, kept.ID, "driver-1", string(pin)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.CompleteRide(ctx, r.ID, "driver-1", dallas.Point); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := outbox.NewDispatcher(f.store, notify.NewLog(slog.New(slog.DiscardHandler)), f.payments,
		outbox.WithSettler(f.svc),
		outbox.WithClock(f.clock.Now),
	)
	n, err := d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := len(f.store.Events()); n != want {
		t.Errorf("expected all %d events delivered, got %d", want, n)
	}

	if got := f.booking(t, kept.ID); got.PaymentStatus != booking.PaymentCaptured || !f.payments.Captured(got.PaymentReference.String) {
		t.Errorf("expected payment captured, got %s", got.PaymentStatus)
	}
	if got := f.booking(t, dropped.ID); got.PaymentStatus != booking.PaymentRefunded || !f.payments.Refunded(got.PaymentReference.String) {
		t.Errorf("expected payment refunded, got %s", got.PaymentStatus)
	}

	// A second settlement for the same booking is ignored.
	if err := f.svc.SettlePayment(ctx, kept.ID, outbox.KindPaymentRefund); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.booking(t, kept.ID).PaymentStatus; got != booking.PaymentCaptured {
		t.Errorf("expected captured to stick, got %s", got)
	}
}

func TestSettlePayment_UnknownKind(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.SettlePayment(ctx, uuid.New(), outbox.KindNotify); err == nil {
		t.Error("expected error for a notify event")
	}
}
