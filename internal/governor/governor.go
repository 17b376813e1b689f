// Package governor implements the Rate Governor: a token bucket per
// (tenant, source) pair that admits or rejects fetch attempts before they
// reach a connector.
//
// Deliberately hand-rolled rather than built on golang.org/x/time/rate (see
// DESIGN.md): the spec's property tests assert directly on the bucket's
// live fractional token count and the derived retry_after_ms hint, and
// rate.Limiter doesn't expose that state in a form cheap to assert against.
// The refill math mirrors original_source/prototype/governance/rate_limit.py
// exactly: tokens = min(capacity, tokens + elapsed*refillPerSecond).
package governor

import (
	"fmt"
	"sync"
	"time"
)

// Bucket is a single token bucket, safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

// NewBucket creates a Bucket starting full.
func NewBucket(capacity int, refillPerSecond float64) *Bucket {
	return &Bucket{
		capacity:   float64(capacity),
		refillRate: refillPerSecond,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}

// Allow attempts to consume one token, returning true if it succeeded. On
// failure it also returns the number of milliseconds the caller should wait
// before retrying.
func (b *Bucket) Allow() (ok bool, retryAfterMS int64) {
	return b.AllowN(1, time.Now())
}

// AllowN attempts to consume n tokens at the given instant (exposed for
// deterministic testing).
func (b *Bucket) AllowN(n float64, now time.Time) (ok bool, retryAfterMS int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(now)

	if b.tokens >= n {
		b.tokens -= n
		return true, 0
	}

	deficit := n - b.tokens
	seconds := deficit / b.refillRate
	return false, int64(seconds*1000) + 1
}

// Status reports the bucket's live state, refilled as of now.
type Status struct {
	Tokens   float64
	Capacity float64
}

// Status returns the bucket's current fractional token count and capacity.
func (b *Bucket) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return Status{Tokens: b.tokens, Capacity: b.capacity}
}

// Governor owns one Bucket per (tenant, source) pair, created lazily on
// first use.
type Governor struct {
	mu      sync.Mutex
	buckets map[string]*Bucket

	defaultCapacity int
	defaultRefill   float64
}

// New creates a Governor with the given fallback bucket shape, used when a
// source has no explicit rate override.
func New(defaultCapacity int, defaultRefillPerSecond float64) *Governor {
	return &Governor{
		buckets:         make(map[string]*Bucket),
		defaultCapacity: defaultCapacity,
		defaultRefill:   defaultRefillPerSecond,
	}
}

func bucketKey(tenantID, sourceID string) string {
	return tenantID + "\x00" + sourceID
}

// Bucket returns the bucket for (tenantID, sourceID), creating it with
// (capacity, refillPerSecond) if it doesn't exist yet. Subsequent calls
// ignore the capacity/refill arguments once a bucket exists — the shape is
// fixed at first use, matching the spec's "rate state is never globally
// reset" invariant.
func (g *Governor) Bucket(tenantID, sourceID string, capacity int, refillPerSecond float64) *Bucket {
	key := bucketKey(tenantID, sourceID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.buckets[key]; ok {
		return b
	}
	if capacity <= 0 {
		capacity = g.defaultCapacity
	}
	if refillPerSecond <= 0 {
		refillPerSecond = g.defaultRefill
	}
	b := NewBucket(capacity, refillPerSecond)
	g.buckets[key] = b
	return b
}

// Admit consumes one token from the (tenantID, sourceID) bucket. On
// rejection it returns an error describing the wait.
func (g *Governor) Admit(tenantID, sourceID string, capacity int, refillPerSecond float64) error {
	b := g.Bucket(tenantID, sourceID, capacity, refillPerSecond)
	ok, retryAfterMS := b.Allow()
	if ok {
		return nil
	}
	return &RateLimitError{Source: sourceID, RetryAfterMS: retryAfterMS}
}

// RateLimitError reports that a source's rate bucket is exhausted.
type RateLimitError struct {
	Source       string
	RetryAfterMS int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exhausted for source %q, retry after %dms", e.Source, e.RetryAfterMS)
}
