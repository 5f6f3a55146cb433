// Package earnings derives what a driver makes from a ride. Only the gross
// amount is ever stored; fees and net are recomputed from the current
// FeeModel on every read.
package earnings

import (
	"github.com/Pd-Patel-dev/Waypool-sub000/booking"
)

// Cents is an amount of money in the smallest currency unit.
type Cents int64

// Gross is seats × price summed over the billable bookings.
func Gross(pricePerSeat Cents, bookings []booking.Booking) Cents {
	var total Cents
	for _, b := range bookings {
		if !b.Billable() {
			continue
		}
		total += Cents(b.NumberOfSeats) * pricePerSeat
	}
	return total
}

// FeeModel describes what is taken out of gross earnings. Rates are in
// basis points (1/100 of a percent).
type FeeModel struct {
	ProcessingBps   int64
	ProcessingFixed Cents // per billable booking
	CommissionBps   int64
}

// DefaultFeeModel is card processing at 2.9% + 30c per booking and a 10%
// platform commission.
func DefaultFeeModel() FeeModel {
	return FeeModel{
		ProcessingBps:   290,
		ProcessingFixed: 30,
		CommissionBps:   1000,
	}
}

type Breakdown struct {
	Gross              Cents `json:"gross"`
	ProcessingFee      Cents `json:"processingFee"`
	PlatformCommission Cents `json:"platformCommission"`
	Net                Cents `json:"net"`
	Bookings           int   `json:"bookings"`
	// Final is true once the gross is the ride's completion snapshot.
	Final bool `json:"final"`
}

// Breakdown splits gross across fees for a ride with the given number of
// billable bookings.
func (m FeeModel) Breakdown(gross Cents, bookings int) Breakdown {
	if gross <= 0 {
		return Breakdown{Bookings: bookings}
	}
	processing := bps(gross, m.ProcessingBps) + m.ProcessingFixed*Cents(bookings)
	commission := bps(gross, m.CommissionBps)
	net := gross - processing - commission
	if net < 0 {
		net = 0
	}
	return Breakdown{
		Gross:              gross,
		ProcessingFee:      processing,
		PlatformCommission: commission,
		Net:                net,
		Bookings:           bookings,
	}
}

// bps applies a basis point rate, rounding half up.
func bps(amount Cents, rate int64) Cents {
	return Cents((int64(amount)*rate + 5000) / 10000)
}
