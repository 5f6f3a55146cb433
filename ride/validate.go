package ride

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinSeats = 1
	MaxSeats = 8
)

var (
	ErrValidation       = errors.New("invalid ride")
	ErrInvalidDeparture = errors.New("unrecognised departure date or time")
)

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type RecurrencePattern string

const (
	RecurDaily    RecurrencePattern = "daily"
	RecurWeekdays RecurrencePattern = "weekdays"
	RecurWeekly   RecurrencePattern = "weekly"
)

type Recurrence struct {
	Pattern RecurrencePattern `json:"pattern"`
	EndDate time.Time         `json:"endDate"`
}

// Request describes a ride a driver wants to post. Departure is given the
// way clients send it, as separate locale date and time strings.
type Request struct {
	DriverID      string
	Origin        Place
	Destination   Place
	DepartureDate string
	DepartureTime string
	Recurrence    *Recurrence
	TotalSeats    int
	PricePerSeat  int64
	Draft         bool
}

// Build validates the request and returns the ride it describes. No
// existing-ride checks are made here; see ScheduleConflict and DuplicateOf.
func (req Request) Build(id uuid.UUID, loc *time.Location, now time.Time) (Ride, error) {
	if strings.TrimSpace(req.DriverID) == "" {
		return Ride{}, &ValidationError{Field: "driverId", Reason: "required"}
	}
	if err := validatePlace("origin", req.Origin); err != nil {
		return Ride{}, err
	}
	if err := validatePlace("destination", req.Destination); err != nil {
		return Ride{}, err
	}
	if req.TotalSeats < MinSeats || req.TotalSeats > MaxSeats {
		return Ride{}, &ValidationError{
			Field:  "totalSeats",
			Reason: fmt.Sprintf("must be between %d and %d", MinSeats, MaxSeats),
		}
	}
	if req.PricePerSeat < 0 {
		return Ride{}, &ValidationError{Field: "pricePerSeat", Reason: "must not be negative"}
	}

	departure, err := ParseDeparture(req.DepartureDate, req.DepartureTime, loc)
	if err != nil {
		return Ride{}, &ValidationError{Field: "departure", Reason: err.Error()}
	}
	if !req.Draft && !departure.After(now) {
		return Ride{}, &ValidationError{Field: "departure", Reason: "must be in the future"}
	}

	status := StatusScheduled
	if req.Draft {
		status = StatusDraft
	}

	r := Ride{
		ID:                 id,
		DriverID:           req.DriverID,
		OriginAddress:      strings.TrimSpace(req.Origin.Address),
		OriginCity:         strings.TrimSpace(req.Origin.City),
		OriginState:        strings.TrimSpace(req.Origin.State),
		OriginLat:          req.Origin.Lat,
		OriginLng:          req.Origin.Lng,
		DestinationAddress: strings.TrimSpace(req.Destination.Address),
		DestinationCity:    strings.TrimSpace(req.Destination.City),
		DestinationState:   strings.TrimSpace(req.Destination.State),
		DestinationLat:     req.Destination.Lat,
		DestinationLng:     req.Destination.Lng,
		DepartureAt:        departure,
		TotalSeats:         req.TotalSeats,
		AvailableSeats:     req.TotalSeats,
		PricePerSeat:       req.PricePerSeat,
		Status:             status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if req.Recurrence != nil {
		if err := validateRecurrence(*req.Recurrence, departure); err != nil {
			return Ride{}, err
		}
		r.RecurrencePattern = sql.NullString{String: string(req.Recurrence.Pattern), Valid: true}
		r.RecurrenceEndDate = sql.NullTime{Time: req.Recurrence.EndDate.UTC(), Valid: true}
	}

	return r, nil
}

func validatePlace(field string, p Place) error {
	if strings.TrimSpace(p.Address) == "" {
		return &ValidationError{Field: field + ".address", Reason: "required"}
	}
	if strings.TrimSpace(p.City) == "" {
		return &ValidationError{Field: field + ".city", Reason: "required"}
	}
	if strings.TrimSpace(p.State) == "" {
		return &ValidationError{Field: field + ".state", Reason: "required"}
	}
	return ValidatePoint(field, p.Point)
}

// ValidatePoint rejects coordinates outside the WGS84 range.
func ValidatePoint(field string, p Point) error {
	if p.Lat < -90 || p.Lat > 90 {
		return &ValidationError{Field: field + ".latitude", Reason: "out of range"}
	}
	if p.Lng < -180 || p.Lng > 180 {
		return &ValidationError{Field: field + ".longitude", Reason: "out of range"}
	}
	return nil
}

func validateRecurrence(rec Recurrence, departure time.Time) error {
	switch rec.Pattern {
	case RecurDaily, RecurWeekdays, RecurWeekly:
	default:
		return &ValidationError{Field: "recurrence.pattern", Reason: "must be daily, weekdays or weekly"}
	}
	if rec.EndDate.IsZero() {
		return &ValidationError{Field: "recurrence.endDate", Reason: "required"}
	}
	if sameOrBefore(rec.EndDate, departure) {
		return &ValidationError{Field: "recurrence.endDate", Reason: "must be after the departure date"}
	}
	return nil
}

// sameOrBefore compares calendar dates only.
func sameOrBefore(end, departure time.Time) bool {
	ey, em, ed := end.UTC().Date()
	dy, dm, dd := departure.UTC().Date()
	e := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	d := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	return !e.After(d)
}

var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
}

var timeLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"03:04 PM",
	"15:04",
}

// ParseDeparture turns the locale date ("MM/DD/YYYY" or ISO) and clock time
// ("h:mm AM" or 24h) strings into a UTC instant, interpreting them in loc.
func ParseDeparture(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date = strings.TrimSpace(date)
	clock = strings.ToUpper(strings.TrimSpace(clock))

	for _, dl := range dateLayouts {
		for _, tl := range timeLayouts {
			t, err := time.ParseInLocation(dl+" "+tl, date+" "+clock, loc)
			if err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, ErrInvalidDeparture
}
