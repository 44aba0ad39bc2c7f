package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRateLimiter 基于固定窗口计数的限流器
type RedisRateLimiter struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRateLimiter 创建限流器
func NewRedisRateLimiter(client *redis.Client, keyPrefix string) *RedisRateLimiter {
	if client == nil {
		panic("redis client cannot be nil for RedisRateLimiter")
	}
	return &RedisRateLimiter{client: client, keyPrefix: keyPrefix}
}

// Allow 递增 key 的计数，窗口内超过 limit 时返回 false
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.keyPrefix + "ratelimit:" + key
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", fullKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", fullKey, err)
	}
	return count <= int64(limit), nil
}
