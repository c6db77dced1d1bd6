// Package ingest sequences an analytics ingestion request: rate limiting,
// body parsing, validation and best-effort forwarding. It knows nothing about
// HTTP routing; the api package adapts it to a handler.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"analytics/internal/forward"
	"analytics/internal/models"
	"analytics/internal/ratelimit"
	"analytics/internal/validate"
)

// DefaultMaxBodyBytes bounds how much of a request body is read.
const DefaultMaxBodyBytes int64 = 64 << 10

// Request is the transport-independent input of one ingestion.
type Request struct {
	ClientKey string // used verbatim; "" is a key like any other
	Referer   string
	Body      io.Reader
}

// Outcome is the result of one ingestion. Err is nil exactly when Status is
// 200; it carries log context and is never sent to the client.
type Outcome struct {
	Status    int
	Result    models.IngestionResult
	RateLimit ratelimit.Info
	Limited   bool
	Event     *models.EventPayload
	Err       *Error
}

// Service handles analytics ingestion.
type Service struct {
	limiter   ratelimit.Limiter
	forwarder forward.Forwarder
	observer  Observer
	maxBody   int64
}

// Option configures a Service.
type Option func(*Service)

// WithObserver reports every outcome to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes. Non-positive values are
// ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewService creates an ingestion service. A nil forwarder behaves like
// forward.Disabled.
func NewService(limiter ratelimit.Limiter, forwarder forward.Forwarder, opts ...Option) *Service {
	if forwarder == nil {
		forwarder = forward.Disabled{}
	}
	s := &Service{
		limiter:   limiter,
		forwarder: forwarder,
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest runs the pipeline for req. It never returns an error: every failure
// is folded into the Outcome, and a forwarding failure still yields 200 with
// forwarded=false.
func (s *Service) Ingest(ctx context.Context, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = s.reject(out, NewProcessingError("ingestion panicked", fmt.Errorf("%v", r)))
		}
		if s.observer != nil {
			category := ""
			if out.Event != nil {
				category = out.Event.EventName.Category()
			}
			s.observer.RecordIngestion(ctx, out.Status, category)
		}
	}()

	key := req.ClientKey
	allowed, info := s.limiter.Allow(key)
	out.RateLimit = info
	if !allowed {
		out.Limited = true
		return s.reject(out, NewRateLimitedError(key))
	}

	body, err := s.readBody(req.Body)
	if err != nil {
		return s.reject(out, NewProcessingError("failed to read request body", err))
	}

	event, err := validate.Parse(body)
	if err != nil {
		if errors.Is(err, validate.ErrMalformedBody) {
			return s.reject(out, NewProcessingError("failed to parse request body", err))
		}
		return s.reject(out, NewInvalidPayloadError(err))
	}
	out.Event = event

	forwarded := true
	if err := s.forwarder.Forward(ctx, event, req.Referer); err != nil {
		forwarded = false
		if !errors.Is(err, forward.ErrDisabled) {
			slog.WarnContext(ctx, "Event not forwarded",
				"event", event.EventName,
				"error", err,
			)
		}
	}

	out.Status = http.StatusOK
	out.Result = models.Accepted(forwarded)
	return out
}

func (s *Service) readBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, s.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > s.maxBody {
		return nil, fmt.Errorf("body exceeds %d bytes", s.maxBody)
	}
	return body, nil
}

func (s *Service) reject(out Outcome, e *Error) Outcome {
	switch e.StatusCode {
	case http.StatusInternalServerError:
		slog.Error("Ingestion failed", "error", e)
	case http.StatusBadRequest:
		slog.Debug("Invalid event payload", "error", e)
	}
	out.Status = e.StatusCode
	out.Result = models.Rejected(e.Kind)
	out.Err = e
	return out
}
