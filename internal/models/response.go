// Package models - API response types.
// This file defines the ingestion response contract and the generic error and
// health responses served by the auxiliary routes.
package models

import (
	"time"
)

// IngestionError names why an ingestion request was not accepted.
type IngestionError string

const (
	IngestionErrorRateLimited     IngestionError = "rate_limited"
	IngestionErrorInvalidPayload  IngestionError = "invalid_event_payload"
	IngestionErrorProcessingError IngestionError = "analytics_processing_error"
)

// IngestionResult is the response body of POST /api/analytics.
//
// Ok means the event was accepted for processing. Forwarded reports whether
// the upstream collector acknowledged it; a false value on an accepted event
// is not an error.
type IngestionResult struct {
	Ok        bool           `json:"ok"`
	Forwarded bool           `json:"forwarded"`
	Error     IngestionError `json:"error,omitempty"`
}

// Accepted builds the result for an event that passed validation.
func Accepted(forwarded bool) IngestionResult {
	return IngestionResult{Ok: true, Forwarded: forwarded}
}

// Rejected builds the result for a request that was not accepted.
func Rejected(kind IngestionError) IngestionResult {
	return IngestionResult{Ok: false, Forwarded: false, Error: kind}
}

// ErrorResponse is the body of non-ingestion error responses (unknown routes,
// wrong methods, recovered panics).
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes for ErrorResponse.
const (
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
)

// NewErrorResponse creates a new error response
func NewErrorResponse(message, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheckResponse reports service and component health.
type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth describes one component of the service.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthCheckResponse creates a health check response with the given status
func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]ComponentHealth),
	}
}

// AddComponent records the health of a named component.
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	if h.Components == nil {
		h.Components = make(map[string]ComponentHealth)
	}
	h.Components[name] = ComponentHealth{Status: status, Message: message}
}
