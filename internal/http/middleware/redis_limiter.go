package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisWindowLimiter is the distributed fixed-window limiter shared by
// every replica behind one Redis. INCR + first-hit EXPIRE keeps the whole
// decision to two round trips.
type redisWindowLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisWindowLimiter(client *redis.Client, prefix string) Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &redisWindowLimiter{client: client, prefix: prefix}
}

func (l *redisWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	bucket := time.Now().Unix() / int64(window.Seconds())
	redisKey := fmt.Sprintf("%s:{%s}:%d", l.prefix, key, bucket)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, window+time.Second).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if count > int64(limit) {
		resetAt := time.Unix((bucket+1)*int64(window.Seconds()), 0)
		return Decision{Allowed: false, Remaining: 0, RetryAfter: time.Until(resetAt)}, nil
	}
	return Decision{Allowed: true, Remaining: limit - int(count)}, nil
}
