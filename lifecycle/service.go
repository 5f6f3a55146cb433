// Package lifecycle runs every ride and booking transition as one atomic
// unit: status changes, seat ledger updates, PIN state and outbox events
// for the same operation commit together or not at all.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Pd-Patel-dev/Waypool-sub000/earnings"
	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
)

type Service struct {
	store    Store
	pins     *pickup.Issuer
	payments Payments
	policy   Policy
	fees     earnings.FeeModel
	now      func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithPayments(p Payments) Option {
	return func(s *Service) { s.payments = p }
}

func WithFeeModel(m earnings.FeeModel) Option {
	return func(s *Service) { s.fees = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(store Store, pins *pickup.Issuer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		pins:   pins,
		policy: DefaultPolicy(),
		fees:   earnings.DefaultFeeModel(),
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer("lifecycle"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Location == nil {
		s.policy.Location = time.UTC
	}
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

// start opens a span for op. The returned func records the outcome and
// must be deferred with a pointer to the operation's error.
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		result := "ok"
		if err := *errp; err != nil {
			result = resultLabel(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		transitions.WithLabelValues(op, result).Inc()
		span.End()
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	if isDomainError(err) {
		return "rejected"
	}
	return "error"
}
