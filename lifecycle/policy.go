package lifecycle

import (
	"time"

	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
	"github.com/Pd-Patel-dev/Waypool-sub000/ride"
)

// Policy holds the tunable rules of the engine.
type Policy struct {
	// GeofenceRadius is how close, in meters, the driver must be to the
	// destination to complete a ride.
	GeofenceRadius float64
	// GeofenceTestMode skips the destination check.
	GeofenceTestMode bool
	// RequirePassengerToStart refuses to start rides without a confirmed
	// booking.
	RequirePassengerToStart bool

	ScheduleSeparation time.Duration
	DuplicateTolerance float64
	DuplicateWindow    time.Duration

	Pickup pickup.Policy

	// Location interprets departure dates and times sent by clients.
	Location *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		GeofenceRadius:          100,
		RequirePassengerToStart: true,
		ScheduleSeparation:      ride.MinSeparation,
		DuplicateTolerance:      ride.DuplicateTolerance,
		DuplicateWindow:         ride.DuplicateWindow,
		Pickup:                  pickup.DefaultPolicy(),
		Location:                time.UTC,
	}
}
