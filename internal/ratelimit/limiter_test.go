package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/compassplan/compass/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFallbackLimiter(config Config) *RateLimiter {
	redisClient := &RedisClient{enabled: false}
	return NewRateLimiter(redisClient, config, monitoring.NewMetrics())
}

func TestFallbackLimiterBlocksAfterBurst(t *testing.T) {
	config := Config{
		IPLimitPerMin:          3,
		SuggestionLimitPerWeek: 3,
		BurstMultiplier:        1,
	}
	limiter := newFallbackLimiter(config)

	ctx := context.Background()

	// Burst floor is 5, so the first 5 requests pass.
	allowed := 0
	for i := 0; i < 20; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		if result.Allowed {
			allowed++
		}
	}

	assert.GreaterOrEqual(t, allowed, 3)
	assert.LessOrEqual(t, allowed, 6)
}

func TestFallbackLimiterIndependentKeys(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	ctx := context.Background()

	for _, tenant := range []string{"t1", "t2", "t3"} {
		result, err := limiter.AllowTenantSuggestions(ctx, tenant)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "first request for %s should be allowed", tenant)
	}
}

func TestFallbackLimiterRetryAfterOnBlock(t *testing.T) {
	config := Config{
		IPLimitPerMin:          1,
		SuggestionLimitPerWeek: 1,
		BurstMultiplier:        1,
	}
	limiter := newFallbackLimiter(config)
	ctx := context.Background()

	var blocked *Result
	for i := 0; i < 30; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.9")
		require.NoError(t, err)
		if !result.Allowed {
			blocked = result
			break
		}
	}

	require.NotNil(t, blocked, "limiter never blocked")
	assert.Greater(t, blocked.RetryAfter, time.Duration(0))
	assert.Equal(t, 1, blocked.Limit)
}

func TestGetStatsReportsFallback(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	ctx := context.Background()

	_, err := limiter.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)

	stats := limiter.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["fallback_limiters"])
}
