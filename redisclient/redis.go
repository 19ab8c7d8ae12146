package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/AlfredDev/kontext/server/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a redis.Client with the fixed-window counter helper shared by
// the rate limiter (middleware/ratelimit.go) and the plan ledger (ledger/).
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error if
// the Redis URL cannot be parsed; callers should treat a non-nil error (or a
// failed Ping) as "run without Redis", not as fatal.
func New(cfg *config.Config) (*Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL not configured")
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

// Ping verifies connectivity with a short timeout.
func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// IncrWindow increments the fixed-window counter at key, setting its
// expiry to window only on the first increment of that window (so the TTL
// never slides forward on repeated hits). It returns the counter's new
// value and its time-to-live.
func (r *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := r.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	count, err := incr.Result()
	if err != nil {
		return 0, 0, err
	}

	remaining, err := ttl.Result()
	if err != nil {
		return 0, 0, err
	}

	if count == 1 || remaining < 0 {
		if err := r.c.Expire(ctx, key, window).Err(); err != nil {
			return count, window, err
		}
		remaining = window
	}

	return count, remaining, nil
}

// AddBy atomically adds delta to the counter at key, resetting its TTL to
// window when it already has one and setting it to window on the key's first
// write. Used by the plan ledger
// to debit a batch of events against the current billing period's counter.
func (r *Client) AddBy(ctx context.Context, key string, delta int64, window time.Duration) (int64, error) {
	pipe := r.c.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	pipe.Expire(ctx, key, window, redis.XX) // only refresh if it already has a TTL
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, err
	}
	val, err := incr.Result()
	if err != nil {
		return 0, err
	}
	if val == delta {
		// First write for this key — establish the TTL.
		_ = r.c.Expire(ctx, key, window).Err()
	}
	return val, nil
}
