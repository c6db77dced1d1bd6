package observability

import (
	"context"

	"analytics/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// sizer is implemented by limiters that can report how many buckets they hold.
type sizer interface {
	Len() int
}

// InstrumentedLimiter wraps a ratelimit.Limiter with a decision counter and,
// when the inner limiter exposes its size, an active-bucket gauge.
type InstrumentedLimiter struct {
	inner        ratelimit.Limiter
	decisions    metric.Int64Counter
	registration metric.Registration
}

// NewInstrumentedLimiter creates a limiter wrapper bound to the global meter
// provider.
func NewInstrumentedLimiter(inner ratelimit.Limiter) (*InstrumentedLimiter, error) {
	meter := otel.Meter("analytics/ratelimit")

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Rate limit decisions by result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	l := &InstrumentedLimiter{inner: inner, decisions: decisions}

	if s, ok := inner.(sizer); ok {
		buckets, err := meter.Int64ObservableGauge(
			"ratelimit.buckets",
			metric.WithDescription("Client buckets currently tracked"),
			metric.WithUnit("{bucket}"),
		)
		if err != nil {
			return nil, err
		}
		reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(buckets, int64(s.Len()))
			return nil
		}, buckets)
		if err != nil {
			return nil, err
		}
		l.registration = reg
	}

	return l, nil
}

func (l *InstrumentedLimiter) Allow(key string) (bool, ratelimit.Info) {
	allowed, info := l.inner.Allow(key)

	result := "allowed"
	if !allowed {
		result = "denied"
	}
	l.decisions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))

	return allowed, info
}

func (l *InstrumentedLimiter) Close() {
	if l.registration != nil {
		_ = l.registration.Unregister()
	}
	l.inner.Close()
}
