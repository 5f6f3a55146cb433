// Package ride models a driver-posted trip: its route, schedule, seat
// capacity and lifecycle status.
package ride

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Place is one end of a ride's route.
type Place struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Point
}

type Ride struct {
	ID       uuid.UUID `db:"id"`
	DriverID string    `db:"driver_id"`

	OriginAddress string  `db:"origin_address"`
	OriginCity    string  `db:"origin_city"`
	OriginState   string  `db:"origin_state"`
	OriginLat     float64 `db:"origin_lat"`
	OriginLng     float64 `db:"origin_lng"`

	DestinationAddress string  `db:"destination_address"`
	DestinationCity    string  `db:"destination_city"`
	DestinationState   string  `db:"destination_state"`
	DestinationLat     float64 `db:"destination_lat"`
	DestinationLng     float64 `db:"destination_lng"`

	// DepartureAt is the canonical departure instant, always UTC.
	DepartureAt time.Time `db:"departure_at"`

	RecurrencePattern sql.NullString `db:"recurrence_pattern"`
	RecurrenceEndDate sql.NullTime   `db:"recurrence_end_date"`

	TotalSeats     int `db:"total_seats"`
	AvailableSeats int `db:"available_seats"`
	// PricePerSeat is in cents.
	PricePerSeat int64 `db:"price_per_seat"`

	Status Status `db:"status"`
	// TotalEarnings is the gross snapshot in cents, set once on completion.
	TotalEarnings sql.NullInt64 `db:"total_earnings"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r Ride) Origin() Place {
	return Place{
		Address: r.OriginAddress,
		City:    r.OriginCity,
		State:   r.OriginState,
		Point:   Point{Lat: r.OriginLat, Lng: r.OriginLng},
	}
}

func (r Ride) Destination() Place {
	return Place{
		Address: r.DestinationAddress,
		City:    r.DestinationCity,
		State:   r.DestinationState,
		Point:   Point{Lat: r.DestinationLat, Lng: r.DestinationLng},
	}
}

// Recurrence returns the ride's recurrence descriptor, if any.
func (r Ride) Recurrence() (Recurrence, bool) {
	if !r.RecurrencePattern.Valid {
		return Recurrence{}, false
	}
	return Recurrence{
		Pattern: RecurrencePattern(r.RecurrencePattern.String),
		EndDate: r.RecurrenceEndDate.Time,
	}, true
}

// BookedSeats is the number of seats currently claimed by billable bookings.
func (r Ride) BookedSeats() int {
	return r.TotalSeats - r.AvailableSeats
}
