// Package validate parses and structurally validates inbound analytics events.
//
// Parse separates two failure classes that callers must treat differently:
//   - ErrMalformedBody: the body is not JSON at all (a transport-level fault)
//   - *InvalidPayloadError: the body is JSON but does not match the event schema
//
// Validation uses go-playground/validator with two custom tags:
//   - isots: an ISO-8601 UTC date-time ("2024-01-01T00:00:00Z", optional fraction)
//   - flatmeta: a map whose values are only strings, numbers, booleans or null
package validate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"analytics/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrMalformedBody reports a request body that is not syntactically valid JSON.
var ErrMalformedBody = errors.New("malformed request body")

// InvalidPayloadError reports a syntactically valid body that violates the
// event schema.
type InvalidPayloadError struct {
	Field  string
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	if e.Field == "" {
		return "invalid event payload: " + e.Reason
	}
	return fmt.Sprintf("invalid event payload: %s: %s", e.Field, e.Reason)
}

// allowedFields is the exact, case-sensitive set of top-level keys.
var allowedFields = map[string]struct{}{
	"eventName": {},
	"mode":      {},
	"docSlug":   {},
	"sectionId": {},
	"nodeId":    {},
	"sessionId": {},
	"ts":        {},
	"value":     {},
	"metadata":  {},
}

// isoTimestamp matches the date-time shape accepted for ts. Calendar validity
// is checked separately with time.Parse.
var isoTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator instance with the custom tags
// registered.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		// Registration only fails on an empty tag or nil func.
		_ = validate.RegisterValidation("isots", func(fl validator.FieldLevel) bool {
			return ValidTimestamp(fl.Field().String())
		})
		_ = validate.RegisterValidation("flatmeta", func(fl validator.FieldLevel) bool {
			md, ok := fl.Field().Interface().(models.Metadata)
			return ok && md.Flat()
		})
	})
	return validate
}

// ValidTimestamp reports whether s is an ISO-8601 UTC date-time with a Z
// designator that names a real instant.
func ValidTimestamp(s string) bool {
	if !isoTimestamp.MatchString(s) {
		return false
	}
	_, err := time.Parse(time.RFC3339Nano, s)
	return err == nil
}

// Parse decodes body into an EventPayload and validates it. It has no side
// effects.
func Parse(body []byte) (*models.EventPayload, error) {
	if !wellFormed(body) {
		return nil, ErrMalformedBody
	}

	if err := checkFields(body); err != nil {
		return nil, err
	}

	var payload models.EventPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, &InvalidPayloadError{Reason: err.Error()}
	}
	if v := payload.Value; v != nil && (math.IsInf(*v, 0) || math.IsNaN(*v)) {
		return nil, &InvalidPayloadError{Field: "value", Reason: "must be a finite number"}
	}

	if err := getValidator().Struct(&payload); err != nil {
		return nil, translate(err)
	}

	return &payload, nil
}

// wellFormed reports whether body holds exactly one JSON value. Numbers are
// kept as json.Number so that out-of-range values count as well-formed and
// are rejected later as schema violations.
func wellFormed(body []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}
	return errors.Is(dec.Decode(&v), io.EOF)
}

// checkFields requires body to be an object whose keys all belong to the
// schema, compared case-sensitively, and none of whose values is null.
func checkFields(body []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return &InvalidPayloadError{Reason: "payload must be a JSON object"}
	}

	for name, raw := range fields {
		if _, ok := allowedFields[name]; !ok {
			return &InvalidPayloadError{Field: name, Reason: "unrecognized field"}
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return &InvalidPayloadError{Field: name, Reason: "must not be null"}
		}
	}
	return nil
}

// translate converts validator errors into an InvalidPayloadError naming the
// first failing field.
func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &InvalidPayloadError{Reason: err.Error()}
	}

	fe := fieldErrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "min":
		reason = "must not be empty"
	case "isots":
		reason = "must be an ISO-8601 UTC date-time"
	case "flatmeta":
		reason = "values must be string, number, boolean or null"
	default:
		reason = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return &InvalidPayloadError{Field: fe.Field(), Reason: reason}
}
