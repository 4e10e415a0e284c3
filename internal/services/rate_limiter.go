package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a sliding-window limiter shared by every process using
// the same Redis, so several reeldeck instances stay under one catalog quota.
type RedisRateLimiter struct {
	redis       *redis.Client
	key         string
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

// NewRedisRateLimiter creates a limiter allowing maxRequests per window under key
func NewRedisRateLimiter(client *redis.Client, key string, maxRequests int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		redis:       client,
		key:         key,
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Allow records a request if the window has room and reports whether it did
func (rl *RedisRateLimiter) Allow(ctx context.Context) (bool, error) {
	now := rl.now()
	windowStart := now.Add(-rl.window).UnixMilli()
	member := uuid.NewString()

	pipe := rl.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rl.key, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, rl.key)
	pipe.ZAdd(ctx, rl.key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: member,
	})
	pipe.Expire(ctx, rl.key, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	if countCmd.Val() < int64(rl.maxRequests) {
		return true, nil
	}

	// Denied requests must not use up the window
	if err := rl.redis.ZRem(ctx, rl.key, member).Err(); err != nil {
		return false, fmt.Errorf("rate limit rollback: %w", err)
	}
	return false, nil
}

// Wait blocks until a request is allowed or ctx is done
func (rl *RedisRateLimiter) Wait(ctx context.Context) error {
	backoff := rl.window / time.Duration(max(rl.maxRequests, 1))
	if backoff < 10*time.Millisecond {
		backoff = 10 * time.Millisecond
	}

	for {
		ok, err := rl.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
