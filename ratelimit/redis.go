package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter counts requests in fixed windows shared by every instance
// connected to the same redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string

	now func() time.Time
}

func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

// Allow fails open: on redis errors the request is allowed and the error returned.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	now := l.now()
	window := now.UnixNano() / int64(limit.Period)
	windowEnd := time.Unix(0, (window+1)*int64(limit.Period))
	redisKey := fmt.Sprintf("%s:%s:%s:%d", l.prefix, limit.String(), key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, limit.Period)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
	}

	count := incr.Val()
	if count > int64(limit.Requests) {
		return Decision{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: limit.Requests - int(count)}, nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
