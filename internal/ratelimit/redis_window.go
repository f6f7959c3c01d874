package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/timmy/imgprompt/internal/logger"
)

// RedisWindow keeps the global window in Redis so several replicas share one
// counter. The key expires when the window ends, which resets the count.
type RedisWindow struct {
	counter windowCounter
	key     string
	rule    Rule
}

// windowCounter is the part of Redis the window uses. PTTL reports -2 for a
// missing key and -1 for a key without expiry.
type windowCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	PExpire(ctx context.Context, key string, ttl time.Duration) error
	PTTL(ctx context.Context, key string) (time.Duration, error)
	Close() error
}

type redisCounter struct {
	client *redis.Client
}

func (c *redisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

func (c *redisCounter) PExpire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.PExpire(ctx, key, ttl).Err()
}

func (c *redisCounter) PTTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.PTTL(ctx, key).Result()
}

func (c *redisCounter) Close() error {
	return c.client.Close()
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisWindow connects to Redis and verifies the connection.
func NewRedisWindow(cfg RedisConfig, rule Rule) (*RedisWindow, error) {
	if !rule.valid() {
		return nil, fmt.Errorf("rate limit rule must have positive values: %+v", rule)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisWindow(&redisCounter{client: client}, cfg.Key, rule), nil
}

func newRedisWindow(counter windowCounter, key string, rule Rule) *RedisWindow {
	if key == "" {
		key = "ratelimit:vlm:window"
	}
	return &RedisWindow{counter: counter, key: key, rule: rule}
}

// Close releases the Redis connection.
func (r *RedisWindow) Close() error {
	return r.counter.Close()
}

// Rule returns the configured ceiling.
func (r *RedisWindow) Rule() Rule {
	return r.rule
}

// Acquire implements Limiter.
func (r *RedisWindow) Acquire(ctx context.Context) error {
	for {
		wait, ok, err := r.tryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		logger.With(logger.Fields{
			"wait_ms": wait.Milliseconds(),
			"limit":   r.rule.Requests,
		}).Info(ctx, "Rate limit reached, waiting for window rollover")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *RedisWindow) tryAcquire(ctx context.Context) (time.Duration, bool, error) {
	count, err := r.counter.Incr(ctx, r.key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment rate window: %w", err)
	}
	if count == 1 {
		if err := r.counter.PExpire(ctx, r.key, r.rule.Window); err != nil {
			return 0, false, fmt.Errorf("failed to set rate window expiry: %w", err)
		}
	}
	if count <= int64(r.rule.Requests) {
		return 0, true, nil
	}

	ttl, err := r.counter.PTTL(ctx, r.key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rate window ttl: %w", err)
	}
	switch {
	case ttl == -2:
		// Key expired between INCR and PTTL; the next INCR opens a new window.
		return 0, false, nil
	case ttl <= 0:
		// Key without expiry, left by a failed PEXPIRE; repair it.
		if err := r.counter.PExpire(ctx, r.key, r.rule.Window); err != nil {
			return 0, false, fmt.Errorf("failed to set rate window expiry: %w", err)
		}
		ttl = r.rule.Window
	}
	return ttl, false, nil
}
