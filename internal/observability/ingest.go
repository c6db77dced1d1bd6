package observability

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IngestMetrics counts ingestion requests by response status and event
// category. It satisfies ingest.Observer.
type IngestMetrics struct {
	requests metric.Int64Counter
}

// NewIngestMetrics creates the ingestion counter on the global meter provider.
func NewIngestMetrics() (*IngestMetrics, error) {
	meter := otel.Meter("analytics/ingest")

	requests, err := meter.Int64Counter(
		"ingest.requests",
		metric.WithDescription("Ingestion requests by response status and event category"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &IngestMetrics{requests: requests}, nil
}

// RecordIngestion counts one handled request. category is empty when the
// request was rejected before the event name was known.
func (m *IngestMetrics) RecordIngestion(ctx context.Context, status int, category string) {
	if category == "" {
		category = "none"
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", strconv.Itoa(status)),
		attribute.String("category", category),
	))
}
