package observability

import (
	"context"
	"errors"
	"time"

	"analytics/internal/forward"
	"analytics/internal/models"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Forward outcomes recorded on the forward.outcomes counter.
const (
	OutcomeDelivered   = "delivered"
	OutcomeDisabled    = "disabled"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
)

// InstrumentedForwarder wraps a forward.Forwarder with a trace span, a
// latency histogram and an outcome counter per delivery attempt.
type InstrumentedForwarder struct {
	inner    forward.Forwarder
	tracer   trace.Tracer
	duration metric.Float64Histogram
	outcomes metric.Int64Counter
}

// NewInstrumentedForwarder creates a forwarder wrapper bound to the global
// tracer and meter providers.
func NewInstrumentedForwarder(inner forward.Forwarder) (*InstrumentedForwarder, error) {
	tracer := otel.Tracer("analytics/forward")
	meter := otel.Meter("analytics/forward")

	duration, err := meter.Float64Histogram(
		"forward.duration",
		metric.WithDescription("Duration of upstream capture attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"forward.outcomes",
		metric.WithDescription("Upstream capture attempts by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedForwarder{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		outcomes: outcomes,
	}, nil
}

func (f *InstrumentedForwarder) Forward(ctx context.Context, event *models.EventPayload, referer string) error {
	ctx, span := f.tracer.Start(ctx, "forward.capture",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("event.name", string(event.EventName)),
			attribute.String("event.category", event.EventName.Category()),
		),
	)
	defer span.End()

	start := time.Now()
	err := f.inner.Forward(ctx, event, referer)
	outcome := classify(err)

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if outcome != OutcomeDisabled {
		f.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	f.outcomes.Add(ctx, 1, attrs)

	span.SetAttributes(attribute.String("forward.outcome", outcome))
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case outcome == OutcomeDisabled:
		// Not an error: forwarding is simply not configured.
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return err
}

func (f *InstrumentedForwarder) Status() string {
	return f.inner.Status()
}

func classify(err error) string {
	var statusErr *forward.StatusError
	switch {
	case err == nil:
		return OutcomeDelivered
	case errors.Is(err, forward.ErrDisabled):
		return OutcomeDisabled
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeCircuitOpen
	case errors.As(err, &statusErr):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
