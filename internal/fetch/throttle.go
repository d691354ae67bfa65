package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rodforge/supplier-import/internal/metrics"
)

// Defaults for the per-origin token bucket.
const (
	DefaultTokensPerSecond = 5
	DefaultBucketCapacity  = 10
)

// Throttle enforces a per-origin token bucket. Each origin gets its own
// bucket created on first use; a full bucket lets a small burst through,
// sustained traffic drains to the refill rate.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// ThrottleConfig holds token bucket parameters.
type ThrottleConfig struct {
	TokensPerSecond float64
	BucketCapacity  int
}

// NewThrottle creates a Throttle. Non-positive parameters fall back to the
// defaults.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	r := rate.Limit(cfg.TokensPerSecond)
	if cfg.TokensPerSecond <= 0 {
		r = rate.Limit(DefaultTokensPerSecond)
	}
	burst := cfg.BucketCapacity
	if burst <= 0 {
		burst = DefaultBucketCapacity
	}
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until the origin of rawURL has a token available, or the
// context is cancelled. The configured bucket parameters apply.
func (t *Throttle) Wait(ctx context.Context, rawURL string) error {
	return t.WaitWith(ctx, rawURL, 0, 0)
}

// WaitWith is Wait with per-call bucket parameters. Positive values re-tune
// the origin's limiter before the token is drawn; zero values keep whatever
// the origin's bucket is currently set to.
func (t *Throttle) WaitWith(ctx context.Context, rawURL string, tokensPerSecond float64, capacity int) error {
	origin := originOf(rawURL)
	limiter := t.limiterFor(origin)

	if tokensPerSecond > 0 && limiter.Limit() != rate.Limit(tokensPerSecond) {
		limiter.SetLimit(rate.Limit(tokensPerSecond))
	}
	if capacity > 0 && limiter.Burst() != capacity {
		limiter.SetBurst(capacity)
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(origin, delay)
	}
	return nil
}

// Allow reports whether a token is immediately available without consuming
// the caller's patience. It does consume the token when available.
func (t *Throttle) Allow(rawURL string) bool {
	return t.limiterFor(originOf(rawURL)).Allow()
}

func (t *Throttle) limiterFor(origin string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	limiter, ok := t.limiters[origin]
	if !ok {
		limiter = rate.NewLimiter(t.rate, t.burst)
		t.limiters[origin] = limiter
	}
	return limiter
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
