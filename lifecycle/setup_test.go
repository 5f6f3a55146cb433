package lifecycle_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
	"github.com/Pd-Patel-dev/Waypool-sub000/capacity"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/memstore"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/payments"
	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
	"github.com/Pd-Patel-dev/Waypool-sub000/outbox"
	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

var ctx = context.Background()

var (
	austin = ride.Place{Address: "1 Congress Ave", City: "Austin", State: "TX", Point: ride.Point{Lat: 30.2672, Lng: -97.7431}}
	dallas = ride.Place{Address: "500 Main St", City: "Dallas", State: "TX", Point: ride.Point{Lat: 32.7767, Lng: -96.797}}
)

// wrongPIN is on the deny list, so it is never the issued PIN.
const wrongPIN = "1111"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store    *memstore.Store
	payments *payments.Fake
	clock    *clock
	svc      *lifecycle.Service
}

func newFixture(t *testing.T, opts ...lifecycle.Option) *fixture {
	return newFixtureWithPINs(t, nil, opts...)
}

// newFixtureWithPINs draws PINs from pins instead of crypto/rand when it is
// not nil.
func newFixtureWithPINs(t *testing.T, pins io.Reader, opts ...lifecycle.Option) *fixture {
	t.Helper()

	c, err := pickup.NewCipher([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	issuerOpts := []pickup.IssuerOption{pickup.WithHashCost(bcrypt.MinCost)}
	if pins != nil {
		issuerOpts = append(issuerOpts, pickup.WithRandom(pins))
	}

	f := &fixture{
		store:    memstore.New(),
		payments: payments.NewFake(),
		clock:    &clock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
	}
	svcOpts := append([]lifecycle.Option{
		lifecycle.WithClock(f.clock.Now),
		lifecycle.WithPayments(f.payments),
	}, opts...)
	f.svc = lifecycle.New(f.store, pickup.NewIssuer(c, issuerOpts...), svcOpts...)
	return f
}

// createRide posts a ride from Austin to Dallas on 03/20/2026 at the given
// time of day.
func (f *fixture) createRide(t *testing.T, driverID, at string, seats int) ride.Ride {
	t.Helper()
	r, err := f.svc.CreateRide(ctx, ride.Request{
		DriverID:      driverID,
		Origin:        austin,
		Destination:   dallas,
		DepartureDate: "03/20/2026",
		DepartureTime: at,
		TotalSeats:    seats,
		PricePerSeat:  1500,
	})
	if err != nil {
		t.Fatalf("failed to create ride: %v", err)
	}
	return r
}

func (f *fixture) requestBooking(t *testing.T, rideID uuid.UUID, riderID string, seats int) booking.Booking {
	t.Helper()
	b, err := f.svc.RequestBooking(ctx, lifecycle.BookingRequest{
		RideID:        rideID,
		RiderID:       riderID,
		Seats:         seats,
		PaymentMethod: "pm_card_visa",
	})
	if err != nil {
		t.Fatalf("failed to request booking: %v", err)
	}
	return b
}

func (f *fixture) accept(t *testing.T, bookingID uuid.UUID, driverID string) pickup.PIN {
	t.Helper()
	pin, err := f.svc.AcceptBooking(ctx, bookingID, driverID)
	if err != nil {
		t.Fatalf("failed to accept booking: %v", err)
	}
	return pin
}

// confirmedRider books seats for riderID and has the driver accept.
func (f *fixture) confirmedRider(t *testing.T, r ride.Ride, riderID string, seats int) (booking.Booking, pickup.PIN) {
	t.Helper()
	b := f.requestBooking(t, r.ID, riderID, seats)
	return b, f.accept(t, b.ID, r.DriverID)
}

func (f *fixture) ride(t *testing.T, id uuid.UUID) ride.Ride {
	t.Helper()
	r, ok := f.store.Ride(id)
	if !ok {
		t.Fatalf("ride %s not stored", id)
	}
	return r
}

func (f *fixture) booking(t *testing.T, id uuid.UUID) booking.Booking {
	t.Helper()
	b, ok := f.store.Booking(id)
	if !ok {
		t.Fatalf("booking %s not stored", id)
	}
	return b
}

// assertBalanced checks the seat ledger of a ride against its bookings.
func (f *fixture) assertBalanced(t *testing.T, rideID uuid.UUID) {
	t.Helper()
	if err := capacity.Check(f.ride(t, rideID), f.store.Bookings(rideID)); err != nil {
		t.Error(err)
	}
}

// events returns the committed outbox events of kind, optionally limited
// to one notification type.
func (f *fixture) events(kind outbox.Kind, notifyType string) []outbox.Event {
	var out []outbox.Event
	for _, e := range f.store.Events() {
		if e.Kind != kind {
			continue
		}
		if notifyType != "" {
			n, err := e.Notification()
			if err != nil || n.Type != notifyType {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
