package api

import (
	"net/http"

	"analytics/internal/ingest"
	"analytics/internal/ratelimit"
)

// IngestEvent handles analytics event ingestion
// POST /api/analytics
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	out := h.ingester.Ingest(r.Context(), ingest.Request{
		ClientKey: ratelimit.ClientKey(r),
		Referer:   r.Header.Get("Referer"),
		Body:      r.Body,
	})

	if out.RateLimit.Limit > 0 {
		ratelimit.SetHeaders(w, out.RateLimit, !out.Limited)
	}
	w.Header().Set("Cache-Control", "no-store")

	h.writeJSONResponse(w, out.Status, out.Result)
}
