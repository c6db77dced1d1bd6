package ingest

import (
	"fmt"
	"net/http"

	"analytics/internal/models"
)

// Error is a rejected ingestion with its HTTP context. Message and Err are
// for logs only; clients see just the Kind.
type Error struct {
	Kind       models.IngestionError
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewRateLimitedError(key string) *Error {
	return &Error{
		Kind:       models.IngestionErrorRateLimited,
		Message:    fmt.Sprintf("rate budget exhausted for client %q", key),
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewInvalidPayloadError(err error) *Error {
	return &Error{
		Kind:       models.IngestionErrorInvalidPayload,
		Message:    "event payload rejected",
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewProcessingError(message string, err error) *Error {
	return &Error{
		Kind:       models.IngestionErrorProcessingError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
