package microsoft

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

// RateLimitConfig holds client-side throttling for one product.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultRateLimits stays below the service protection limits of each product.
// Dataverse allows 6000 requests per 5 minutes per user; Finance & Operations
// throttles on resource utilisation, so it gets a lower ceiling.
var DefaultRateLimits = map[domain.Product]RateLimitConfig{
	domain.ProductDataverse: {RequestsPerSecond: 20.0, BurstSize: 30},
	domain.ProductFinOps:    {RequestsPerSecond: 10.0, BurstSize: 20},
}

// defaultRetryAfterSeconds applies when a 429 carries no usable Retry-After.
const defaultRetryAfterSeconds = 60

// RateLimiter paces OData requests with a token bucket and a server-imposed
// backoff window recorded from 429 responses.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	product domain.Product
}

// NewRateLimiter creates a rate limiter for the given product.
func NewRateLimiter(product domain.Product) *RateLimiter {
	cfg, ok := DefaultRateLimits[product]
	if !ok {
		cfg = DefaultRateLimits[domain.ProductDataverse]
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		product: product,
	}
}

// NewRateLimiterWithConfig creates a rate limiter with custom configuration.
func NewRateLimiterWithConfig(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Product returns the product this limiter was configured for.
func (r *RateLimiter) Product() domain.Product {
	return r.product
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period set by RecordRateLimitError.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		timer := time.NewTimer(time.Until(retryAt))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimitError sets a backoff window after the retry budget for a 429
// is exhausted, so subsequent requests do not hammer a throttled environment.
func (r *RateLimiter) RecordRateLimitError(retryAfterSeconds uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfterSeconds == 0 {
		retryAfterSeconds = defaultRetryAfterSeconds
	}

	r.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
}

// Allow checks if a request can be made immediately without blocking.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}

	return r.limiter.Allow()
}
