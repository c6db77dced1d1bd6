package ingest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"analytics/internal/forward"
	"analytics/internal/models"
	"analytics/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const validBody = `{"eventName":"mode_viewed","mode":"feed","ts":"2024-01-01T00:00:00Z"}`

// MockForwarder implements forward.Forwarder for testing
type MockForwarder struct {
	mock.Mock
}

func (m *MockForwarder) Forward(ctx context.Context, event *models.EventPayload, referer string) error {
	args := m.Called(ctx, event, referer)
	return args.Error(0)
}

func (m *MockForwarder) Status() string {
	return "closed"
}

// MockObserver implements Observer for testing
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) RecordIngestion(ctx context.Context, status int, category string) {
	m.Called(ctx, status, category)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, fwd forward.Forwarder, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewMemoryLimiter(60, 1, time.Hour, time.Hour, ratelimit.WithClock(clock.Now))
	t.Cleanup(limiter.Close)
	return NewService(limiter, fwd, opts...), clock
}

func request(key, body string) Request {
	return Request{ClientKey: key, Body: strings.NewReader(body)}
}

type panicForwarder struct{}

func (panicForwarder) Forward(context.Context, *models.EventPayload, string) error {
	panic("upstream exploded")
}

func (panicForwarder) Status() string { return "closed" }

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestIngest_ValidEventForwarded(t *testing.T) {
	fwd := new(MockForwarder)
	fwd.On("Forward", mock.Anything, mock.MatchedBy(func(e *models.EventPayload) bool {
		return e.EventName == models.EventModeViewed && *e.Mode == models.ModeFeed
	}), "https://site.example/feed").Return(nil)

	svc, _ := newTestService(t, fwd)
	out := svc.Ingest(context.Background(), Request{
		ClientKey: "203.0.113.7",
		Referer:   "https://site.example/feed",
		Body:      strings.NewReader(validBody),
	})

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, models.IngestionResult{Ok: true, Forwarded: true}, out.Result)
	assert.Nil(t, out.Err)
	assert.False(t, out.Limited)
	assert.Equal(t, 59, out.RateLimit.Remaining)
	require.NotNil(t, out.Event)
	fwd.AssertExpectations(t)
}

func TestIngest_ForwardFailureStillAccepted(t *testing.T) {
	fwd := new(MockForwarder)
	fwd.On("Forward", mock.Anything, mock.Anything, "").Return(&forward.StatusError{StatusCode: 503})

	svc, _ := newTestService(t, fwd)
	out := svc.Ingest(context.Background(), request("k", validBody))

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, models.IngestionResult{Ok: true, Forwarded: false}, out.Result)
	assert.Nil(t, out.Err)
}

func TestIngest_DisabledForwarder(t *testing.T) {
	svc, _ := newTestService(t, forward.Disabled{})
	out := svc.Ingest(context.Background(), request("k", validBody))

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, models.Accepted(false), out.Result)
}

func TestIngest_NilForwarderIsDisabled(t *testing.T) {
	svc, _ := newTestService(t, nil)
	out := svc.Ingest(context.Background(), request("k", validBody))

	assert.Equal(t, http.StatusOK, out.Status)
	assert.False(t, out.Result.Forwarded)
}

func TestIngest_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing ts", `{"eventName":"mode_viewed"}`},
		{"unknown event", `{"eventName":"page_viewed","ts":"2024-01-01T00:00:00Z"}`},
		{"unknown field", `{"eventName":"mode_viewed","ts":"2024-01-01T00:00:00Z","foo":1}`},
		{"bad mode", `{"eventName":"mode_viewed","mode":"grid","ts":"2024-01-01T00:00:00Z"}`},
		{"array body", `[1,2,3]`},
		{"value overflows float64", `{"eventName":"doc_progress","ts":"2024-01-01T00:00:00Z","value":1e400}`},
		{"metadata overflows float64", `{"eventName":"mode_viewed","ts":"2024-01-01T00:00:00Z","metadata":{"n":1e400}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd := new(MockForwarder)
			svc, _ := newTestService(t, fwd)

			out := svc.Ingest(context.Background(), request("k", tt.body))

			assert.Equal(t, http.StatusBadRequest, out.Status)
			assert.Equal(t, models.Rejected(models.IngestionErrorInvalidPayload), out.Result)
			require.NotNil(t, out.Err)
			assert.Equal(t, models.IngestionErrorInvalidPayload, out.Err.Kind)
			fwd.AssertNotCalled(t, "Forward", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestIngest_MalformedBody(t *testing.T) {
	for _, body := range []string{"", "{", "not json", `{"eventName":"mode_viewed"} trailing`} {
		fwd := new(MockForwarder)
		svc, _ := newTestService(t, fwd)

		out := svc.Ingest(context.Background(), request("k", body))

		assert.Equal(t, http.StatusInternalServerError, out.Status, body)
		assert.Equal(t, models.Rejected(models.IngestionErrorProcessingError), out.Result)
		fwd.AssertNotCalled(t, "Forward", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestIngest_BodyReadError(t *testing.T) {
	svc, _ := newTestService(t, new(MockForwarder))

	out := svc.Ingest(context.Background(), Request{ClientKey: "k", Body: errReader{}})

	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, models.IngestionErrorProcessingError, out.Result.Error)
	assert.ErrorContains(t, out.Err, "connection reset")
}

func TestIngest_BodyTooLarge(t *testing.T) {
	svc, _ := newTestService(t, new(MockForwarder), WithMaxBodyBytes(32))

	out := svc.Ingest(context.Background(), request("k", validBody))

	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, models.IngestionErrorProcessingError, out.Result.Error)
}

func TestIngest_NilBody(t *testing.T) {
	svc, _ := newTestService(t, new(MockForwarder))

	out := svc.Ingest(context.Background(), Request{ClientKey: "k"})

	assert.Equal(t, http.StatusInternalServerError, out.Status)
}

func TestIngest_PanicBecomesProcessingError(t *testing.T) {
	svc, _ := newTestService(t, panicForwarder{})

	out := svc.Ingest(context.Background(), request("k", validBody))

	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, models.Rejected(models.IngestionErrorProcessingError), out.Result)
	assert.ErrorContains(t, out.Err, "upstream exploded")
}

func TestIngest_RateLimit(t *testing.T) {
	fwd := new(MockForwarder)
	fwd.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc, clock := newTestService(t, fwd)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		out := svc.Ingest(ctx, request("203.0.113.7", validBody))
		require.Equal(t, http.StatusOK, out.Status, "request %d", i+1)
	}

	out := svc.Ingest(ctx, request("203.0.113.7", validBody))
	assert.Equal(t, http.StatusTooManyRequests, out.Status)
	assert.Equal(t, models.Rejected(models.IngestionErrorRateLimited), out.Result)
	assert.True(t, out.Limited)
	assert.Equal(t, time.Second, out.RateLimit.RetryAfter)

	// Other clients are unaffected.
	assert.Equal(t, http.StatusOK, svc.Ingest(ctx, request("198.51.100.2", validBody)).Status)

	clock.Advance(time.Second)
	assert.Equal(t, http.StatusOK, svc.Ingest(ctx, request("203.0.113.7", validBody)).Status)
	assert.Equal(t, http.StatusTooManyRequests, svc.Ingest(ctx, request("203.0.113.7", validBody)).Status)

	fwd.AssertNumberOfCalls(t, "Forward", 62)
}

func TestIngest_RateLimitPrecedesParsing(t *testing.T) {
	svc, _ := newTestService(t, new(MockForwarder))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		svc.Ingest(ctx, request("k", "not json"))
	}

	// Invalid requests still spend tokens, and a limited request is not parsed.
	out := svc.Ingest(ctx, request("k", "not json"))
	assert.Equal(t, http.StatusTooManyRequests, out.Status)
}

func TestIngest_EmptyKeyIsOwnBucket(t *testing.T) {
	fwd := new(MockForwarder)
	fwd.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc, _ := newTestService(t, fwd)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		svc.Ingest(ctx, request("", validBody))
	}
	out := svc.Ingest(ctx, request(ratelimit.UnknownClient, validBody))
	assert.Equal(t, 59, out.RateLimit.Remaining, "sentinel bucket is untouched by empty keys")

	out = svc.Ingest(ctx, request("", validBody))
	assert.Equal(t, 29, out.RateLimit.Remaining)
}

func TestIngest_Observer(t *testing.T) {
	fwd := new(MockForwarder)
	fwd.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	obs := new(MockObserver)
	obs.On("RecordIngestion", mock.Anything, http.StatusOK, "view").Once()
	obs.On("RecordIngestion", mock.Anything, http.StatusBadRequest, "").Once()

	svc, _ := newTestService(t, fwd, WithObserver(obs))
	ctx := context.Background()

	svc.Ingest(ctx, request("k", validBody))
	svc.Ingest(ctx, request("k", `{"eventName":"mode_viewed"}`))

	obs.AssertExpectations(t)
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := NewProcessingError("failed to parse request body", cause)

	assert.Equal(t, "failed to parse request body: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)

	limited := NewRateLimitedError("203.0.113.7")
	assert.Equal(t, `rate budget exhausted for client "203.0.113.7"`, limited.Error())
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.Nil(t, limited.Unwrap())

	invalid := NewInvalidPayloadError(cause)
	assert.Equal(t, models.IngestionErrorInvalidPayload, invalid.Kind)
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}
