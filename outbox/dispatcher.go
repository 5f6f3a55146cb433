package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Source is where pending events are claimed from.
type Source interface {
	// Pending claims up to limit undelivered events due at now. A claimed
	// event is not returned again until its lease runs out.
	Pending(ctx context.Context, now time.Time, limit int) ([]Event, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAt time.Time) error
	MarkDead(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
}

type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, data map[string]string) error
}

type Payments interface {
	Capture(ctx context.Context, reference string) error
	Refund(ctx context.Context, reference string) error
}

// Settler records the outcome of a delivered payment event on the booking.
type Settler interface {
	SettlePayment(ctx context.Context, bookingID uuid.UUID, kind Kind) error
}

var ErrNoHandler = errors.New("no handler for event kind")

type Dispatcher struct {
	source      Source
	notifier    Notifier
	payments    Payments
	settler     Settler
	logger      *slog.Logger
	interval    time.Duration
	batch       int
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

type Option func(*Dispatcher)

func WithSettler(s Settler) Option {
	return func(d *Dispatcher) { d.settler = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithInterval(i time.Duration) Option {
	return func(d *Dispatcher) { d.interval = i }
}

func WithBatchSize(n int) Option {
	return func(d *Dispatcher) { d.batch = n }
}

func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// WithBackoff sets the base retry delay. The nth retry waits n times base.
func WithBackoff(base time.Duration) Option {
	return func(d *Dispatcher) { d.backoff = base }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(src Source, n Notifier, p Payments, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:      src,
		notifier:    n,
		payments:    p,
		logger:      slog.Default(),
		interval:    2 * time.Second,
		batch:       50,
		maxAttempts: 8,
		backoff:     5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drains the outbox every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.ErrorContext(ctx, "failed to drain outbox", "error", err)
			}
		}
	}
}

// DrainOnce delivers one batch and returns how many events were delivered.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	events, err := d.source.Pending(ctx, d.now(), d.batch)
	if err != nil {
		return 0, fmt.Errorf("claiming outbox events: %w", err)
	}

	delivered := 0
	for _, e := range events {
		logger := d.logger.With(
			slog.String("event_id", e.ID.String()),
			slog.String("kind", string(e.Kind)),
			slog.Int("attempt", e.Attempts+1),
		)

		err := d.deliver(ctx, e)
		if err == nil {
			delivered++
			dispatched.WithLabelValues(string(e.Kind), "delivered").Inc()
			if err := d.source.MarkDelivered(ctx, e.ID, d.now()); err != nil {
				logger.ErrorContext(ctx, "failed to mark outbox event delivered", "error", err)
			}
			continue
		}

		if e.Attempts+1 >= d.maxAttempts || errors.Is(err, ErrNoHandler) {
			dispatched.WithLabelValues(string(e.Kind), "dead").Inc()
			logger.ErrorContext(ctx, "giving up on outbox event", "error", err)
			if err := d.source.MarkDead(ctx, e.ID, err.Error(), d.now()); err != nil {
				logger.ErrorContext(ctx, "failed to mark outbox event dead", "error", err)
			}
			continue
		}

		dispatched.WithLabelValues(string(e.Kind), "retry").Inc()
		logger.WarnContext(ctx, "outbox event delivery failed", "error", err)
		retryAt := d.now().Add(time.Duration(e.Attempts+1) * d.backoff)
		if err := d.source.MarkFailed(ctx, e.ID, err.Error(), retryAt); err != nil {
			logger.ErrorContext(ctx, "failed to reschedule outbox event", "error", err)
		}
	}
	return delivered, nil
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) error {
	switch e.Kind {
	case KindNotify:
		if d.notifier == nil {
			return ErrNoHandler
		}
		n, err := e.Notification()
		if err != nil {
			return fmt.Errorf("%w: bad payload: %v", ErrNoHandler, err)
		}
		return d.notifier.Notify(ctx, n.UserID, n.Type, n.Data)

	case KindPaymentCapture, KindPaymentRefund:
		if d.payments == nil {
			return ErrNoHandler
		}
		p, err := e.PaymentAction()
		if err != nil {
			return fmt.Errorf("%w: bad payload: %v", ErrNoHandler, err)
		}
		if e.Kind == KindPaymentCapture {
			err = d.payments.Capture(ctx, p.Reference)
		} else {
			err = d.payments.Refund(ctx, p.Reference)
		}
		if err != nil {
			return err
		}
		if d.settler != nil {
			// The gateway call succeeded; a failure to record it must not
			// trigger a second gateway call.
			if err := d.settler.SettlePayment(ctx, p.BookingID, e.Kind); err != nil {
				d.logger.ErrorContext(ctx, "failed to record payment outcome",
					"booking_id", p.BookingID, "kind", e.Kind, "error", err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoHandler, e.Kind)
}
