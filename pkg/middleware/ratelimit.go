package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TokenBucketConfig defines the bucket shape
type TokenBucketConfig struct {
	// Capacity is the largest burst admitted at once
	Capacity int64
	// RefillRate is the sustained rate in tokens per second
	RefillRate float64
}

// DefaultTokenBucketConfig returns default bucket settings
func DefaultTokenBucketConfig() *TokenBucketConfig {
	return &TokenBucketConfig{
		Capacity:   10,
		RefillRate: 1,
	}
}

// Admitter decides whether one more request may proceed
type Admitter interface {
	Admit(ctx context.Context) (allowed bool, remaining int64, err error)
	Capacity() int64
}

// TokenBucket is a process-wide token bucket. Refill is floored to whole tokens
// and the refill timestamp moves on every call.
type TokenBucket struct {
	config *TokenBucketConfig
	now    func() time.Time

	mu         sync.Mutex
	tokens     int64
	lastRefill time.Time
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(config *TokenBucketConfig) *TokenBucket {
	return NewTokenBucketWithClock(config, time.Now)
}

// NewTokenBucketWithClock creates a full bucket reading time from now
func NewTokenBucketWithClock(config *TokenBucketConfig, now func() time.Time) *TokenBucket {
	if config == nil {
		config = DefaultTokenBucketConfig()
	}
	return &TokenBucket{
		config:     config,
		now:        now,
		tokens:     config.Capacity,
		lastRefill: now(),
	}
}

// TryAcquire takes one token if available. It never blocks on anything but the bucket lock.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	b.lastRefill = now

	if elapsed > 0 {
		restored := int64(math.Floor(elapsed.Seconds() * b.config.RefillRate))
		if restored > 0 {
			b.tokens += restored
			if b.tokens > b.config.Capacity {
				b.tokens = b.config.Capacity
			}
		}
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Remaining returns the tokens currently in the bucket
func (b *TokenBucket) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Admit implements Admitter
func (b *TokenBucket) Admit(ctx context.Context) (bool, int64, error) {
	allowed := b.TryAcquire()
	return allowed, b.Remaining(), nil
}

// Capacity implements Admitter
func (b *TokenBucket) Capacity() int64 {
	return b.config.Capacity
}

// RateLimitMiddleware rejects requests once the bucket is empty
type RateLimitMiddleware struct {
	limiter  Admitter
	rejected prometheus.Counter
	failOpen bool
}

// RateLimitOption configures a RateLimitMiddleware
type RateLimitOption func(*RateLimitMiddleware)

// WithRejectCounter counts rejected requests
func WithRejectCounter(c prometheus.Counter) RateLimitOption {
	return func(m *RateLimitMiddleware) {
		m.rejected = c
	}
}

// WithFailOpen admits requests when the limiter itself errors
func WithFailOpen(enabled bool) RateLimitOption {
	return func(m *RateLimitMiddleware) {
		m.failOpen = enabled
	}
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter Admitter, opts ...RateLimitOption) *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		limiter:  limiter,
		failOpen: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, err := m.limiter.Admit(r.Context())
		if err != nil {
			if m.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		if !allowed {
			m.rateLimitExceeded(w)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.limiter.Capacity()))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) rateLimitExceeded(w http.ResponseWriter) {
	if m.rejected != nil {
		m.rejected.Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.limiter.Capacity()))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
