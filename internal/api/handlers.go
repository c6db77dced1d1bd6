package api

import (
	"log/slog"
	"net/http"

	"analytics/internal/forward"
	"analytics/internal/ingest"
	"analytics/internal/models"
	"analytics/internal/version"

	"github.com/goccy/go-json"
)

// Handlers contains HTTP handlers for the analytics API
type Handlers struct {
	ingester  ingest.Ingester
	forwarder forward.Forwarder
	version   version.Info
}

// HandlersOption configures optional Handlers dependencies.
type HandlersOption func(*Handlers)

// WithForwarder reports the forwarder's state on the health endpoint.
func WithForwarder(f forward.Forwarder) HandlersOption {
	return func(h *Handlers) {
		h.forwarder = f
	}
}

// WithVersion sets the build information reported on the health endpoint.
func WithVersion(v version.Info) HandlersOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(ingester ingest.Ingester, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		ingester: ingester,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck handles health check requests
// GET /health
//
// The service is degraded, never unhealthy, when the collector is unreachable:
// ingestion keeps accepting events with forwarded=false.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	if h.forwarder != nil {
		switch state := h.forwarder.Status(); state {
		case "disabled":
			response.AddComponent("upstream", models.StatusHealthy, "Forwarding disabled: no API key configured")
		case "closed":
			response.AddComponent("upstream", models.StatusHealthy, "Forwarding enabled")
		default:
			response.Status = models.StatusDegraded
			response.AddComponent("upstream", models.StatusUnhealthy, "Circuit breaker "+state)
		}
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more can be sent.
		slog.Error("Error encoding JSON response", "error", err)
	}
}
