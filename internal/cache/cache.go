package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"marketplace/internal/logging"
)

const (
	hitsKey           = "cache:hits"
	missesKey         = "cache:misses"
	responseTimeKeys  = "response_time:*"
	responseTimeLimit = 100
	responseTimeTTL   = time.Hour
	scanBatch         = 100
)

// Cache is a JSON key-value cache with TTL on top of redis.
type Cache struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// New wraps a redis client.
func New(client redis.UniversalClient, logger *zap.Logger) *Cache {
	return &Cache{client: client, logger: logging.OrNop(logger).Named("cache")}
}

// Get decodes the value stored at key into dest. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := c.GetRaw(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value as JSON under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.SetRaw(ctx, key, raw, ttl)
}

// GetRaw returns the bytes stored at key.
func (c *Cache) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return raw, true, nil
}

func (c *Cache) SetRaw(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// DeletePattern removes every key matching a glob pattern and returns how many went.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.scan(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: delete %s: %w", pattern, err)
	}
	return int(n), nil
}

func (c *Cache) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: scan %s: %w", pattern, err)
	}
	return keys, nil
}

func (c *Cache) RecordHit(ctx context.Context) error {
	return c.client.Incr(ctx, hitsKey).Err()
}

func (c *Cache) RecordMiss(ctx context.Context) error {
	return c.client.Incr(ctx, missesKey).Err()
}

// RecordResponseTime pushes a sample onto the per-route window of the last 100 requests.
func (c *Cache) RecordResponseTime(ctx context.Context, method, route string, d time.Duration) error {
	key := "response_time:" + method + ":" + route
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, d.Milliseconds())
	pipe.LTrim(ctx, key, 0, responseTimeLimit-1)
	pipe.Expire(ctx, key, responseTimeTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: record response time %s: %w", key, err)
	}
	return nil
}

// Stats summarises response times, cache effectiveness and process memory.
type Stats struct {
	Timestamp    time.Time     `json:"timestamp"`
	ResponseTime ResponseStats `json:"responseTime"`
	Cache        HitStats      `json:"cache"`
	Memory       MemoryStats   `json:"memory"`
	Goroutines   int           `json:"goroutines"`
}

type ResponseStats struct {
	AverageMs     float64 `json:"averageMs"`
	TotalRequests int     `json:"totalRequests"`
}

type HitStats struct {
	HitRate float64 `json:"hitRate"` // percent
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
}

type MemoryStats struct {
	AllocMB     float64 `json:"allocMb"`
	HeapInuseMB float64 `json:"heapInuseMb"`
	SysMB       float64 `json:"sysMb"`
}

// Stats reads the sampled windows and the hit counters.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Timestamp: time.Now().UTC(), Goroutines: runtime.NumGoroutine()}

	keys, err := c.scan(ctx, responseTimeKeys)
	if err != nil {
		return Stats{}, err
	}
	var total int64
	for _, key := range keys {
		samples, err := c.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("cache: read %s: %w", key, err)
		}
		for _, s := range samples {
			ms, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				continue
			}
			total += ms
			stats.ResponseTime.TotalRequests++
		}
	}
	if stats.ResponseTime.TotalRequests > 0 {
		stats.ResponseTime.AverageMs = round2(float64(total) / float64(stats.ResponseTime.TotalRequests))
	}

	if stats.Cache.Hits, err = c.counter(ctx, hitsKey); err != nil {
		return Stats{}, err
	}
	if stats.Cache.Misses, err = c.counter(ctx, missesKey); err != nil {
		return Stats{}, err
	}
	if lookups := stats.Cache.Hits + stats.Cache.Misses; lookups > 0 {
		stats.Cache.HitRate = round2(float64(stats.Cache.Hits) / float64(lookups) * 100)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.Memory = MemoryStats{
		AllocMB:     megabytes(mem.Alloc),
		HeapInuseMB: megabytes(mem.HeapInuse),
		SysMB:       megabytes(mem.Sys),
	}
	return stats, nil
}

func (c *Cache) counter(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: read %s: %w", key, err)
	}
	return n, nil
}

// ResetStats zeroes the hit and miss counters.
func (c *Cache) ResetStats(ctx context.Context) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, hitsKey, 0, 0)
	pipe.Set(ctx, missesKey, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: reset stats: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func megabytes(b uint64) float64 {
	return round2(float64(b) / 1024 / 1024)
}
