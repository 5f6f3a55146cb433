// Package payments holds ride fares on the rider's card when a booking is
// requested, captures them when the ride completes and releases them when
// the booking does not go ahead.
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
)

// Stripe authorizes fares as manual-capture PaymentIntents.
type Stripe struct {
	currency string
}

// NewStripe sets the process-wide Stripe key.
func NewStripe(key, currency string) *Stripe {
	stripe.Key = key
	return &Stripe{currency: currency}
}

func (s *Stripe) Authorize(_ context.Context, auth lifecycle.Authorization) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(auth.AmountCents),
		Currency:      stripe.String(s.currency),
		PaymentMethod: stripe.String(auth.PaymentMethod),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		Metadata: map[string]string{
			"booking_id": auth.BookingID.String(),
			"rider_id":   auth.RiderID,
		},
	}
	params.SetIdempotencyKey("authorize-" + auth.BookingID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("creating payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		return "", fmt.Errorf("payment intent %s not authorized: %s", pi.ID, pi.Status)
	}
	return pi.ID, nil
}

func (s *Stripe) Capture(_ context.Context, reference string) error {
	_, err := paymentintent.Capture(reference, nil)
	return err
}

// Refund releases an uncaptured hold, or refunds the charge if it was
// already captured.
func (s *Stripe) Refund(_ context.Context, reference string) error {
	pi, err := paymentintent.Get(reference, nil)
	if err != nil {
		return err
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusCanceled:
		return nil
	case stripe.PaymentIntentStatusSucceeded:
		_, err = refund.New(&stripe.RefundParams{PaymentIntent: stripe.String(reference)})
	default:
		_, err = paymentintent.Cancel(reference, nil)
	}
	return err
}
