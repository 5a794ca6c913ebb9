package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix for rate limit counters.
const counterKeyPrefix = "rl:ip:"

// RedisStore implements Store with a fixed window counter in Redis. This is
// the implementation for deployments running more than one gateway instance
// behind a load balancer.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed rate limit store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Allow increments the window counter for key. INCR plus EXPIRE-on-create
// keeps the check to a single round trip pipeline.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := time.Now()
	bucket := now.Unix() / int64(window.Seconds())
	redisKey := fmt.Sprintf("%s%s:%d", counterKeyPrefix, key, bucket)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit incr: %w", err)
	}

	count := int(incr.Val())
	resetAt := time.Unix((bucket+1)*int64(window.Seconds()), 0)

	result := Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	return result, nil
}
