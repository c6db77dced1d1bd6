package ingest

import "context"

// Ingester runs the ingestion pipeline for one request.
type Ingester interface {
	Ingest(ctx context.Context, req Request) Outcome
}

// Observer receives one notification per handled request.
type Observer interface {
	RecordIngestion(ctx context.Context, status int, category string)
}

// Ensure Service implements Ingester
var _ Ingester = (*Service)(nil)
