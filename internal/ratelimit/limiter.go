// Package ratelimit provides per-client rate limiting for the analytics
// endpoint using a continuous token bucket. Buckets refill lazily on each
// decision; there is no background refill timer.
package ratelimit

import "time"

// Limiter defines the rate limiting contract. Implementations must be safe for
// concurrent use, and decisions for the same key must be serialized.
type Limiter interface {
	// Allow checks whether a request identified by key should be admitted,
	// consuming one token when it is. Returns rate information for
	// populating response headers.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Bucket capacity
	Remaining  int           // Whole tokens remaining after this decision
	ResetAt    time.Time     // When the bucket will be full again
	RetryAfter time.Duration // How long until one token is available (meaningful only when denied)
}
