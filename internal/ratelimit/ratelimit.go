// Package ratelimit implements per-client request limiting in front of the
// API routes.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of a Check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Counter decides whether a request from key may proceed.
type Counter interface {
	Check(key string) Decision
	// Cleanup drops state for keys not seen within maxAge.
	Cleanup(maxAge time.Duration)
}

// New returns the counter for strategy: "token" for a token bucket, anything
// else for a fixed window.
func New(strategy string, limit int, window time.Duration) Counter {
	if strategy == "token" {
		return NewTokenBucket(limit, window)
	}
	return NewFixedWindow(limit, window)
}

// FixedWindow allows Limit requests per key in each Window. A key's window
// starts at its first request and resets once it has elapsed.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	records map[string]*windowRecord
}

type windowRecord struct {
	count   int
	resetAt time.Time
}

// NewFixedWindow creates a fixed-window counter. limit <= 0 means unlimited.
func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:   limit,
		window:  window,
		now:     time.Now,
		records: make(map[string]*windowRecord),
	}
}

// Check records a request for key.
func (fw *FixedWindow) Check(key string) Decision {
	if fw.limit <= 0 {
		return Decision{Allowed: true}
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.now()
	rec, ok := fw.records[key]
	if !ok || now.After(rec.resetAt) {
		fw.records[key] = &windowRecord{count: 1, resetAt: now.Add(fw.window)}
		return Decision{Allowed: true, Remaining: fw.limit - 1}
	}

	if rec.count >= fw.limit {
		return Decision{Allowed: false, RetryAfter: rec.resetAt.Sub(now)}
	}
	rec.count++
	return Decision{Allowed: true, Remaining: fw.limit - rec.count}
}

// Cleanup removes records whose window expired more than maxAge ago.
func (fw *FixedWindow) Cleanup(maxAge time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	cutoff := fw.now().Add(-maxAge)
	for key, rec := range fw.records {
		if rec.resetAt.Before(cutoff) {
			delete(fw.records, key)
		}
	}
}

// TokenBucket gives each key a bucket of limit tokens refilled evenly over
// window.
type TokenBucket struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a token-bucket counter. limit <= 0 means unlimited.
func NewTokenBucket(limit int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Check takes a token for key if one is available.
func (tb *TokenBucket) Check(key string) Decision {
	if tb.limit <= 0 {
		return Decision{Allowed: true}
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		perSec := float64(tb.limit) / tb.window.Seconds()
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(perSec), tb.limit)}
		tb.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}
	}
	return Decision{Allowed: true, Remaining: max(int(b.limiter.TokensAt(now)), 0)}
}

// Cleanup removes buckets for keys that haven't been seen recently.
func (tb *TokenBucket) Cleanup(maxAge time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	cutoff := tb.now().Add(-maxAge)
	for key, b := range tb.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(tb.buckets, key)
		}
	}
}
