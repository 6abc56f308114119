// Package cache keeps provider lookups that don't change during a trading
// day in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/types"
)

// DailyBarSource is the lookup being cached.
type DailyBarSource interface {
	DailyBars(ctx context.Context, symbols []string, end time.Time, days int) (map[string][]types.Bar, error)
}

// CachingDailyBars decorates a DailyBarSource with Redis. A nil client
// bypasses the cache entirely.
type CachingDailyBars struct {
	inner     DailyBarSource
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	metrics   *metrics.Metrics
}

// NewCachingDailyBars defaults ttl to 12 hours and namespace to "momentum".
func NewCachingDailyBars(rdb *redis.Client, ttl time.Duration, inner DailyBarSource, namespace string, m *metrics.Metrics) *CachingDailyBars {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if namespace == "" {
		namespace = "momentum"
	}
	return &CachingDailyBars{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		metrics:   m,
	}
}

func (c *CachingDailyBars) DailyBars(ctx context.Context, symbols []string, end time.Time, days int) (map[string][]types.Bar, error) {
	if c.rdb == nil {
		return c.inner.DailyBars(ctx, symbols, end, days)
	}

	out := make(map[string][]types.Bar, len(symbols))
	var misses []string
	for _, sym := range symbols {
		key := c.cacheKey(sym, end, days)
		b, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil && len(b) > 0 {
			var bars []types.Bar
			if err := json.Unmarshal(b, &bars); err == nil {
				out[sym] = bars
				c.metrics.IncCache(true)
				continue
			}
			_ = c.rdb.Del(ctx, key).Err()
		} else if err != nil && err != redis.Nil {
			slog.DebugContext(ctx, "cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		c.metrics.IncCache(false)
		misses = append(misses, sym)
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.inner.DailyBars(ctx, misses, end, days)
	if err != nil {
		return nil, err
	}
	for _, sym := range misses {
		bars, ok := fetched[sym]
		if !ok {
			continue
		}
		out[sym] = bars
		if b, err := json.Marshal(bars); err == nil {
			_ = c.rdb.Set(ctx, c.cacheKey(sym, end, days), b, c.ttl).Err()
		}
	}
	return out, nil
}

// Invalidate drops every cached entry for symbol.
func (c *CachingDailyBars) Invalidate(ctx context.Context, symbol string) error {
	if c.rdb == nil {
		return nil
	}
	pattern := fmt.Sprintf("%s:daily:%s:*", c.namespace, safe(symbol))
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			return nil
		}
	}
}

func (c *CachingDailyBars) cacheKey(symbol string, end time.Time, days int) string {
	return fmt.Sprintf("%s:daily:%s:%s:%d", c.namespace, safe(symbol), end.UTC().Format("2006-01-02"), days)
}

func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, ":", "_")
}

// NewRedisClient connects and pings. An empty addr returns a nil client,
// which disables caching.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis connection failed", slog.String("address", addr), slog.Any("error", err))
		_ = rdb.Close()
		return nil, err
	}
	slog.Info("redis connected", slog.String("address", addr))
	return rdb, nil
}
