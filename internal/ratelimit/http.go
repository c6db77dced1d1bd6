package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
)

// UnknownClient is the key shared by every caller that arrives without proxy
// headers. All such callers draw from one bucket.
const UnknownClient = "unknown"

// ClientKey derives the rate limit key for a request: the first entry of
// X-Forwarded-For, then X-Real-IP, then UnknownClient. A blank first
// forwarded entry yields "", which is a bucket of its own. The key is not a
// verified identity.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return UnknownClient
}

// SetHeaders writes the standard rate limit headers for info. Retry-After is
// set only when allowed is false.
func SetHeaders(w http.ResponseWriter, info Info, allowed bool) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

	if !allowed {
		retryAfterSecs := int(math.Ceil(info.RetryAfter.Seconds()))
		if retryAfterSecs < 1 {
			retryAfterSecs = 1
		}
		h.Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
}
