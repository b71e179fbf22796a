// Package ratelimit implements a fixed-window request counter in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// counter is the subset of redis.Cmdable the limiter uses.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Limiter counts hits per key in fixed windows.
type Limiter struct {
	rdb    counter
	limit  int64
	window time.Duration
	prefix string
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New allows limit hits per key within each window.
func New(rdb counter, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: int64(limit), window: window, prefix: prefix}
}

// Allow counts one hit for key. A nil Limiter allows everything.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.limit <= 0 {
		return true, nil
	}

	k := l.prefix + ":" + key
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", k, err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	if n > l.limit {
		// A failed EXPIRE on the first hit leaves a key that never resets.
		if err := l.repairTTL(ctx, k); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// repairTTL sets the window on a key that has none. TTL reports -1 for such keys.
func (l *Limiter) repairTTL(ctx context.Context, k string) error {
	ttl, err := l.rdb.TTL(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("ttl %s: %w", k, err)
	}
	if ttl != -1 {
		return nil
	}
	if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", k, err)
	}
	return nil
}
