package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// entry is one client's bucket. mu serializes the read-refill-write cycle for
// the key; last is the instant the bucket was last refilled and never moves
// backwards.
type entry struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	last    time.Time
	evicted bool
}

// Option configures a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock replaces the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryLimiter) {
		m.now = now
	}
}

// MemoryLimiter is an in-memory rate limiter backed by golang.org/x/time/rate.
// Each unique key gets its own token bucket, created full on first use. A
// background goroutine periodically evicts buckets that have been idle for at
// least idleTTL and have refilled to capacity; a bucket re-created after
// eviction is indistinguishable from the one removed.
type MemoryLimiter struct {
	rate            rate.Limit
	burst           int
	idleTTL         time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	done    chan struct{}
	closed  bool
}

// NewMemoryLimiter creates a rate limiter holding capacity tokens per key,
// refilled at refillPerSecond. It starts a background goroutine that sweeps
// idle buckets every cleanupInterval.
func NewMemoryLimiter(capacity int, refillPerSecond float64, idleTTL, cleanupInterval time.Duration, opts ...Option) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:            rate.Limit(refillPerSecond),
		burst:           capacity,
		idleTTL:         idleTTL,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		entries:         make(map[string]*entry),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.cleanup()
	return m
}

// Allow checks whether a request from the given key should be admitted.
func (m *MemoryLimiter) Allow(key string) (bool, Info) {
	for {
		e := m.lookup(key)

		e.mu.Lock()
		if e.evicted {
			// Swept between lookup and lock; the key has a fresh bucket now.
			e.mu.Unlock()
			continue
		}

		now := m.now()
		if now.Before(e.last) {
			now = e.last
		}
		e.last = now

		allowed := e.limiter.AllowN(now, 1)
		tokens := e.limiter.TokensAt(now)
		e.mu.Unlock()

		return allowed, m.info(now, tokens, allowed)
	}
}

// lookup returns the bucket for key, creating a full one if none exists.
func (m *MemoryLimiter) lookup(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, exists := m.entries[key]
	if !exists {
		e = &entry{
			limiter: rate.NewLimiter(m.rate, m.burst),
		}
		m.entries[key] = e
	}
	return e
}

func (m *MemoryLimiter) info(now time.Time, tokens float64, allowed bool) Info {
	info := Info{
		Limit:     m.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now,
	}

	if missing := float64(m.burst) - tokens; missing > 0 {
		info.ResetAt = now.Add(m.durationFor(missing))
	}

	if !allowed {
		info.RetryAfter = m.durationFor(1 - tokens)
	}

	return info
}

// durationFor converts a token count into the time needed to refill it.
func (m *MemoryLimiter) durationFor(tokens float64) time.Duration {
	return time.Duration(tokens / float64(m.rate) * float64(time.Second))
}

// Len returns the number of client keys currently holding a bucket.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the background cleanup goroutine.
func (m *MemoryLimiter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

// cleanup periodically evicts idle, fully refilled buckets.
func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

// evictStale removes buckets untouched for idleTTL that are back at capacity,
// and returns how many were removed.
func (m *MemoryLimiter) evictStale() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key, e := range m.entries {
		e.mu.Lock()
		if now.Sub(e.last) >= m.idleTTL && e.limiter.TokensAt(now) >= float64(m.burst) {
			e.evicted = true
			delete(m.entries, key)
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted
}
