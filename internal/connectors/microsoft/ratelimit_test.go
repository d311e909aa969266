package microsoft

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

func TestNewRateLimiter(t *testing.T) {
	tests := []struct {
		name    string
		product domain.Product
		want    RateLimitConfig
	}{
		{name: "dataverse", product: domain.ProductDataverse, want: DefaultRateLimits[domain.ProductDataverse]},
		{name: "finops", product: domain.ProductFinOps, want: DefaultRateLimits[domain.ProductFinOps]},
		{name: "unknown product falls back to dataverse", product: domain.Product("unknown"), want: DefaultRateLimits[domain.ProductDataverse]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.product)
			require.NotNil(t, rl)
			assert.Equal(t, tt.product, rl.Product())
			assert.InDelta(t, tt.want.RequestsPerSecond, float64(rl.limiter.Limit()), 0.001)
			assert.Equal(t, tt.want.BurstSize, rl.limiter.Burst())
		})
	}
}

func TestNewRateLimiterWithConfig(t *testing.T) {
	rl := NewRateLimiterWithConfig(RateLimitConfig{RequestsPerSecond: 5.0, BurstSize: 10})

	require.NotNil(t, rl)
	assert.Equal(t, 10, rl.limiter.Burst())
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(domain.ProductDataverse)

	assert.NoError(t, rl.Wait(context.Background()))
}

func TestRateLimiter_Wait_ContextCancelled(t *testing.T) {
	rl := NewRateLimiter(domain.ProductDataverse)
	rl.RecordRateLimitError(30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rl.Wait(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(domain.ProductFinOps)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(), "request %d should be allowed", i)
	}
}

func TestRateLimiter_RecordRateLimitError(t *testing.T) {
	rl := NewRateLimiter(domain.ProductDataverse)

	rl.RecordRateLimitError(1)
	assert.False(t, rl.Allow())

	time.Sleep(1100 * time.Millisecond)

	assert.True(t, rl.Allow())
}

func TestRateLimiter_RecordRateLimitError_DefaultBackoff(t *testing.T) {
	rl := NewRateLimiter(domain.ProductDataverse)

	rl.RecordRateLimitError(0)

	rl.mu.Lock()
	retryAt := rl.retryAt
	rl.mu.Unlock()

	assert.WithinDuration(t, time.Now().Add(60*time.Second), retryAt, 2*time.Second)
}

func TestDefaultRateLimits(t *testing.T) {
	for _, product := range []domain.Product{domain.ProductDataverse, domain.ProductFinOps} {
		cfg, ok := DefaultRateLimits[product]
		assert.True(t, ok, "missing rate limit config for %s", product)
		assert.Greater(t, cfg.RequestsPerSecond, 0.0)
		assert.Greater(t, cfg.BurstSize, 0)
	}
}
