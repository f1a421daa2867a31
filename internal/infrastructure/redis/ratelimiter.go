// Package redis provides the distributed per-channel send rate limiter used
// by the notification dispatcher. The limiter is optional: processes without
// REDIS_URL run unthrottled.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const windowSeconds = 1

// One INCR+EXPIRE per fixed one-second window, evaluated atomically so
// concurrent dispatchers across processes share the same budget.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

func NewClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RateLimiter is a fixed-window per-second limiter keyed by channel.
type RateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
}

func NewRateLimiter(client *goredis.Client, limitPerSec int) (*RateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limitPerSec)
	}
	return &RateLimiter{
		client:      client,
		limitPerSec: int64(limitPerSec),
		now:         time.Now,
	}, nil
}

// Allow reports whether one send on the channel fits into the current
// one-second window.
func (r *RateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return false, fmt.Errorf("channel is required")
	}

	key := fmt.Sprintf("taskcore:ratelimit:%s:%d", channel, r.now().UTC().Unix())
	result, err := allowScript.Run(ctx, r.client, []string{key}, r.limitPerSec, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("evaluate rate limit: %w", err)
	}
	return result == 1, nil
}

// Health adapts the redis client to the health.Pinger interface.
type Health struct {
	Client *goredis.Client
}

func (h Health) Ping(ctx context.Context) error {
	return h.Client.Ping(ctx).Err()
}
