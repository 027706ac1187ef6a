package travel

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dispatch:travel:"

// RedisCache shares travel durations across planner processes. Redis
// errors degrade to cache misses; the oracle is always the fallback.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a Redis-backed duration cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get implements DurationCache.
func (c *RedisCache) Get(ctx context.Context, key string) (int64, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("travel cache read failed", "key", key, "error", err)
		}
		return 0, false
	}
	seconds, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		c.logger.Warn("travel cache entry malformed", "key", key, "value", val)
		return 0, false
	}
	return seconds, true
}

// Set implements DurationCache.
func (c *RedisCache) Set(ctx context.Context, key string, seconds int64) {
	if err := c.client.Set(ctx, redisKeyPrefix+key, strconv.FormatInt(seconds, 10), c.ttl).Err(); err != nil {
		c.logger.Warn("travel cache write failed", "key", key, "error", err)
	}
}
