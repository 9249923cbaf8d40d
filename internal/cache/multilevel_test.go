// internal/cache/multilevel_test.go
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailradar/arbitrage-backend/internal/config"
)

func newLocalOnlyCache(t *testing.T) *MultiLevelCache {
	t.Helper()
	mlc := NewMultiLevelCache(config.CacheConfig{
		L1Size: 100,
		L1TTL:  time.Minute,
		L2TTL:  5 * time.Minute,
		L3TTL:  10 * time.Minute,
		L4TTL:  10 * time.Minute,
	}, nil)
	t.Cleanup(func() { mlc.Close() })
	return mlc
}

func TestMultiLevelGetMiss(t *testing.T) {
	mlc := newLocalOnlyCache(t)

	_, err := mlc.Get(context.Background(), "match:v5:AAA11111111:BBB22222222")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMultiLevelSetThenGet(t *testing.T) {
	mlc := newLocalOnlyCache(t)
	ctx := context.Background()

	mlc.Set(ctx, "match:v5:AAA11111111:BBB22222222", []byte("verdict"), 0,
		"AAA11111111", "BBB22222222")

	value, err := mlc.Get(ctx, "match:v5:AAA11111111:BBB22222222")
	require.NoError(t, err)
	assert.Equal(t, []byte("verdict"), value)
}

func TestMultiLevelInvalidateEntity(t *testing.T) {
	mlc := newLocalOnlyCache(t)
	ctx := context.Background()

	mlc.Set(ctx, "match:v5:AAA11111111:BBB22222222", []byte("v1"), 0,
		"AAA11111111", "BBB22222222")
	mlc.Set(ctx, "match:v5:BBB22222222:CCC33333333", []byte("v2"), 0,
		"BBB22222222", "CCC33333333")

	mlc.InvalidateEntity(ctx, "AAA11111111")

	_, err := mlc.Get(ctx, "match:v5:AAA11111111:BBB22222222")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Pairs not touching the entity survive
	_, err = mlc.Get(ctx, "match:v5:BBB22222222:CCC33333333")
	assert.NoError(t, err)

	assert.Equal(t, int64(1), mlc.Stats().Invalidations)
}

func TestMultiLevelSharedLevelsDegradeWithoutRedis(t *testing.T) {
	mlc := newLocalOnlyCache(t)
	ctx := context.Background()

	// L3/L4 writes are no-ops without Redis, never panics or errors
	mlc.SetPredictive(ctx, "match:v5:AAA11111111:BBB22222222", []byte("warm"))
	mlc.RecordVolatility(ctx, "AAA11111111", 0.2, 14)

	_, ok := mlc.GetVolatility(ctx, "AAA11111111")
	assert.False(t, ok)
}

func TestMultiLevelStats(t *testing.T) {
	mlc := newLocalOnlyCache(t)
	ctx := context.Background()

	_, _ = mlc.Get(ctx, "absent")
	mlc.Set(ctx, "present", []byte("v"), 0)
	_, err := mlc.Get(ctx, "present")
	require.NoError(t, err)

	stats := mlc.Stats()
	assert.Equal(t, int64(1), stats.L1Hits)
	assert.Equal(t, int64(1), stats.L1Misses)
	assert.Equal(t, int64(1), stats.L3Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, 1, stats.L1Size)
}

func TestEffectiveTTL(t *testing.T) {
	base := 10 * time.Minute

	// Stable, cold entry keeps the base TTL
	assert.Equal(t, base, effectiveTTL(base, 0, 0))

	// Fully volatile entries live half as long
	assert.Equal(t, 5*time.Minute, effectiveTTL(base, 1.0, 0))

	// Hot entries stretch, capped at twice the base
	assert.Equal(t, 20*time.Minute, effectiveTTL(base, 0, 10))
	assert.Equal(t, 20*time.Minute, effectiveTTL(base, 0, 100))

	// Heat and volatility offset each other
	assert.Equal(t, base, effectiveTTL(base, 1.0, 10))

	// Out-of-range volatility is clamped
	assert.Equal(t, base, effectiveTTL(base, -3, 0))
	assert.Equal(t, 5*time.Minute, effectiveTTL(base, 7, 0))
}
