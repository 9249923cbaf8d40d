// internal/cache/multilevel.go
package cache

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/metrics"
)

const (
	l2Prefix  = "l2:match:"
	l3Prefix  = "l3:predict:"
	l4Prefix  = "l4:analytics:"
	idxPrefix = "l2:idx:"
)

// NewRedisClient connects the shared cache levels. The caller may run without
// Redis; every level except L1 then reports misses.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// StatsSnapshot reports per-level hit/miss counts and rates.
type StatsSnapshot struct {
	L1Hits        int64   `json:"l1_hits"`
	L1Misses      int64   `json:"l1_misses"`
	L2Hits        int64   `json:"l2_hits"`
	L2Misses      int64   `json:"l2_misses"`
	L3Hits        int64   `json:"l3_hits"`
	L3Misses      int64   `json:"l3_misses"`
	Invalidations int64   `json:"invalidations"`
	HitRate       float64 `json:"hit_rate"`
	L1Size        int     `json:"l1_size"`
}

// MultiLevelCache layers the process-local L1 over the shared Redis levels.
// It is purely an optimization: every miss falls through to live computation
// and a down Redis degrades the shared levels to misses without surfacing
// errors to callers.
type MultiLevelCache struct {
	l1  *MemoryCache
	rdb *redis.Client
	cfg config.CacheConfig

	l1Hits, l1Misses int64
	l2Hits, l2Misses int64
	l3Hits, l3Misses int64
	invalidations    int64

	degradedOnce sync.Once
}

// NewMultiLevelCache builds the cache hierarchy. rdb may be nil for
// L1-only operation.
func NewMultiLevelCache(cfg config.CacheConfig, rdb *redis.Client) *MultiLevelCache {
	return &MultiLevelCache{
		l1:  NewMemoryCache(cfg.L1Size),
		rdb: rdb,
		cfg: cfg,
	}
}

// Get reads through L1, L2, then L3. Shared-level hits are promoted into L1.
func (c *MultiLevelCache) Get(ctx context.Context, key string) ([]byte, error) {
	if value, _, err := c.l1.Get(key); err == nil {
		atomic.AddInt64(&c.l1Hits, 1)
		metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
		return value, nil
	}
	atomic.AddInt64(&c.l1Misses, 1)
	metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()

	if value, ok := c.redisGet(ctx, l2Prefix+key); ok {
		atomic.AddInt64(&c.l2Hits, 1)
		metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
		c.l1.Set(key, value, c.cfg.L1TTL)
		return value, nil
	}
	atomic.AddInt64(&c.l2Misses, 1)
	metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()

	if value, ok := c.redisGet(ctx, l3Prefix+key); ok {
		atomic.AddInt64(&c.l3Hits, 1)
		metrics.CacheOperations.WithLabelValues("l3", "hit").Inc()
		c.l1.Set(key, value, c.cfg.L1TTL)
		return value, nil
	}
	atomic.AddInt64(&c.l3Misses, 1)
	metrics.CacheOperations.WithLabelValues("l3", "miss").Inc()

	return nil, ErrCacheMiss
}

// Set writes through L1 and L2. Volatile pairs get shortened TTLs so stale
// scores age out faster; hot keys keep their entries longer. entityIDs feed
// the per-entity invalidation index.
func (c *MultiLevelCache) Set(ctx context.Context, key string, value []byte, volatility float64, entityIDs ...string) {
	accesses := c.l1.AccessCount(key)
	c.l1.Set(key, value, effectiveTTL(c.cfg.L1TTL, volatility, accesses))

	if c.rdb == nil {
		return
	}

	l2TTL := effectiveTTL(c.cfg.L2TTL, volatility, accesses)
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, l2Prefix+key, value, l2TTL)
	for _, id := range entityIDs {
		pipe.SAdd(ctx, idxPrefix+id, key)
		pipe.Expire(ctx, idxPrefix+id, c.cfg.L2TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.degraded(err)
	}
}

// SetPredictive stores a precomputed result in L3 for an entity expected to
// be re-evaluated soon. L3 entries may serve stale until their TTL.
func (c *MultiLevelCache) SetPredictive(ctx context.Context, key string, value []byte) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, l3Prefix+key, value, c.cfg.L3TTL).Err(); err != nil {
		c.degraded(err)
	}
}

// InvalidateEntity drops every L1/L2 entry whose pair key touches the entity.
// L3/L4 entries are left to expire on their own; they inform scheduling
// heuristics, not correctness-critical decisions.
func (c *MultiLevelCache) InvalidateEntity(ctx context.Context, entityID string) {
	removed := c.l1.DeleteFunc(func(key string) bool {
		return strings.Contains(key, entityID)
	})

	if c.rdb != nil {
		keys, err := c.rdb.SMembers(ctx, idxPrefix+entityID).Result()
		if err == nil && len(keys) > 0 {
			full := make([]string, 0, len(keys)+1)
			for _, k := range keys {
				full = append(full, l2Prefix+k)
			}
			full = append(full, idxPrefix+entityID)
			if err := c.rdb.Del(ctx, full...).Err(); err != nil {
				c.degraded(err)
			}
			removed += len(keys)
		} else if err != nil && err != redis.Nil {
			c.degraded(err)
		}
	}

	if removed > 0 {
		atomic.AddInt64(&c.invalidations, 1)
		metrics.CacheInvalidations.Inc()
	}
}

// RecordVolatility stores an entity's volatility estimate in the L4
// analytics level for the scheduler's reclassification pass.
func (c *MultiLevelCache) RecordVolatility(ctx context.Context, entityID string, volatility float64, samples int64) {
	if c.rdb == nil {
		return
	}
	key := l4Prefix + entityID
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"volatility": strconv.FormatFloat(volatility, 'f', 6, 64),
		"samples":    strconv.FormatInt(samples, 10),
		"updated_at": strconv.FormatInt(time.Now().Unix(), 10),
	})
	pipe.Expire(ctx, key, c.cfg.L4TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.degraded(err)
	}
}

// GetVolatility reads an entity's volatility estimate from L4. The second
// return is false on a miss, telling the caller to recompute from storage.
func (c *MultiLevelCache) GetVolatility(ctx context.Context, entityID string) (float64, bool) {
	if c.rdb == nil {
		return 0, false
	}
	raw, err := c.rdb.HGet(ctx, l4Prefix+entityID, "volatility").Result()
	if err != nil {
		if err != redis.Nil {
			c.degraded(err)
		}
		metrics.CacheOperations.WithLabelValues("l4", "miss").Inc()
		return 0, false
	}
	vol, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	metrics.CacheOperations.WithLabelValues("l4", "hit").Inc()
	return vol, true
}

// Stats returns a point-in-time snapshot of hit/miss counters.
func (c *MultiLevelCache) Stats() StatsSnapshot {
	s := StatsSnapshot{
		L1Hits:        atomic.LoadInt64(&c.l1Hits),
		L1Misses:      atomic.LoadInt64(&c.l1Misses),
		L2Hits:        atomic.LoadInt64(&c.l2Hits),
		L2Misses:      atomic.LoadInt64(&c.l2Misses),
		L3Hits:        atomic.LoadInt64(&c.l3Hits),
		L3Misses:      atomic.LoadInt64(&c.l3Misses),
		Invalidations: atomic.LoadInt64(&c.invalidations),
		L1Size:        c.l1.Size(),
	}
	hits := s.L1Hits + s.L2Hits + s.L3Hits
	total := hits + s.L3Misses
	if total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Close releases the L1 janitor and the Redis connection.
func (c *MultiLevelCache) Close() error {
	c.l1.Close()
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

func (c *MultiLevelCache) redisGet(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb == nil {
		return nil, false
	}
	value, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.degraded(err)
		}
		return nil, false
	}
	return value, true
}

func (c *MultiLevelCache) degraded(err error) {
	c.degradedOnce.Do(func() {
		logrus.WithError(err).Warn("Shared cache unavailable, degrading to local computation")
	})
}

// effectiveTTL shortens the base TTL for volatile entries and stretches it
// for frequently accessed ones, capped at twice the base.
func effectiveTTL(base time.Duration, volatility float64, accesses int) time.Duration {
	factor := 1.0 - 0.5*math.Max(0, math.Min(1, volatility))
	if accesses > 0 {
		factor *= math.Min(2.0, 1.0+0.1*float64(accesses))
	}
	ttl := time.Duration(float64(base) * factor)
	if min := base / 10; ttl < min {
		ttl = min
	}
	return ttl
}
