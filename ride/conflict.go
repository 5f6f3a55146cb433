package ride

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// MinSeparation is the minimum gap between departures of two active
	// rides of the same driver.
	MinSeparation = 5 * time.Hour
	// DuplicateTolerance is the coordinate tolerance in degrees (about 1km)
	// under which two endpoints are treated as the same place.
	DuplicateTolerance = 0.01
	// DuplicateWindow is how close two departures must be to count as an
	// accidental double submit.
	DuplicateWindow = 30 * time.Minute
)

// ScheduleConflict returns the first scheduled or in-progress ride in
// existing whose departure lies within window of departure. The ride with
// id skip is ignored so a ride never conflicts with itself.
func ScheduleConflict(existing []Ride, skip uuid.UUID, departure time.Time, window time.Duration) (Ride, bool) {
	for _, r := range existing {
		if r.ID == skip {
			continue
		}
		if r.Status != StatusScheduled && r.Status != StatusInProgress {
			continue
		}
		if absDuration(r.DepartureAt.Sub(departure)) < window {
			return r, true
		}
	}
	return Ride{}, false
}

// DuplicateOf returns a non-cancelled ride of the same driver that has the
// same origin and destination (within tol degrees), departs on the same
// date and within window of candidate.
func DuplicateOf(existing []Ride, candidate Ride, tol float64, window time.Duration) (Ride, bool) {
	for _, r := range existing {
		if r.ID == candidate.ID || r.DriverID != candidate.DriverID {
			continue
		}
		if r.Status == StatusCancelled {
			continue
		}
		if !near(r.Origin().Point, candidate.Origin().Point, tol) ||
			!near(r.Destination().Point, candidate.Destination().Point, tol) {
			continue
		}
		if !sameDate(r.DepartureAt, candidate.DepartureAt) {
			continue
		}
		if absDuration(r.DepartureAt.Sub(candidate.DepartureAt)) <= window {
			return r, true
		}
	}
	return Ride{}, false
}

func near(a, b Point, tol float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tol && math.Abs(a.Lng-b.Lng) <= tol
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

const earthRadiusMeters = 6371000.0

// Distance is the great-circle (haversine) distance between a and b in
// meters.
func Distance(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
