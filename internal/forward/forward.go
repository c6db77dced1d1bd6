// Package forward delivers accepted analytics events to an external
// PostHog-compatible collector.
//
// Delivery is best-effort: one POST per event, no retry, no local buffering.
// Forwarding is a capability that exists only when an API key is configured;
// without one, FromConfig returns Disabled, which never touches the network.
package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"analytics/internal/models"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrDisabled is returned by Disabled.Forward.
var ErrDisabled = errors.New("forwarding disabled: no upstream API key configured")

// ErrNoAPIKey is returned by NewClient when the configuration has no API key.
var ErrNoAPIKey = errors.New("upstream API key is required")

// libName identifies this service as the capture source.
const libName = "analytics-ingest"

// maxDrain bounds how much of an upstream response body is read before the
// connection is released.
const maxDrain = 64 << 10

// Forwarder delivers one validated event upstream. A non-nil error means the
// event was not delivered; callers must not treat it as a request failure.
type Forwarder interface {
	Forward(ctx context.Context, event *models.EventPayload, referer string) error

	// Status describes the forwarder for health reporting: "disabled", or the
	// circuit state ("closed", "half-open", "open").
	Status() string
}

// Disabled is the forwarder used when no API key is configured.
type Disabled struct{}

func (Disabled) Forward(context.Context, *models.EventPayload, string) error {
	return ErrDisabled
}

func (Disabled) Status() string {
	return "disabled"
}

// StatusError reports a non-2xx response from the collector. The response body
// is never retained.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for delivery.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLibVersion sets the $lib_version property sent with every event.
func WithLibVersion(v string) Option {
	return func(c *Client) {
		c.libVersion = v
	}
}

// Client posts events to the collector's capture endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	libVersion string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
}

// FromConfig returns a Client when cfg carries an API key and Disabled
// otherwise.
func FromConfig(cfg models.UpstreamConfig, opts ...Option) Forwarder {
	c, err := NewClient(cfg, opts...)
	if err != nil {
		return Disabled{}
	}
	return c
}

// NewClient creates a Client for cfg. It fails only when no API key is set.
func NewClient(cfg models.UpstreamConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNoAPIKey
	}

	host := cfg.Host
	if host == "" {
		host = models.DefaultUpstreamHost
	}

	c := &Client{
		endpoint:   strings.TrimRight(host, "/") + "/capture/",
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker)
	}

	return c, nil
}

func newBreaker(cfg models.BreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "upstream-collector",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Upstream circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// Endpoint returns the capture URL events are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Status reports the circuit state, or "closed" when no breaker is configured.
func (c *Client) Status() string {
	if c.breaker == nil {
		return gobreaker.StateClosed.String()
	}
	return c.breaker.State().String()
}

// Forward makes a single delivery attempt for event. The attempt is detached
// from ctx cancellation so a client disconnect does not abort it; it is bounded
// by the configured upstream timeout instead.
func (c *Client) Forward(ctx context.Context, event *models.EventPayload, referer string) error {
	body, err := json.Marshal(c.capture(event, referer))
	if err != nil {
		return fmt.Errorf("encode capture request: %w", err)
	}

	if c.breaker == nil {
		return c.send(ctx, body)
	}

	_, err = c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.send(ctx, body)
	})
	return err
}

func (c *Client) send(ctx context.Context, body []byte) error {
	ctx = context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post capture request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
