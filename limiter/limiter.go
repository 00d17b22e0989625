package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Strategy decides whether one more request under key fits the budget
// of limit requests per window.
type Strategy interface {
	Allow(ctx context.Context, rdb redis.Scripter, key string, limit int, window time.Duration) (bool, error)
}

type Manager struct {
	rdb      redis.Scripter
	strategy Strategy
	prefix   string
}

func NewManager(rdb redis.Scripter, strategy Strategy) *Manager {
	return &Manager{
		rdb:      rdb,
		strategy: strategy,
		prefix:   "limiter:",
	}
}

func (m *Manager) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.strategy.Allow(ctx, m.rdb, m.prefix+key, limit, window)
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", "fixed_window":
		return &FixedWindowStrategy{}, nil
	case "token_bucket":
		return &TokenBucketStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", name)
	}
}

// INCR the counter and start the window on the first hit.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

type FixedWindowStrategy struct{}

func (s *FixedWindowStrategy) Allow(ctx context.Context, rdb redis.Scripter, key string, limit int, window time.Duration) (bool, error) {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	result, err := fixedWindowScript.Run(ctx, rdb, []string{key}, limit, seconds).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// Refill tokens for the elapsed seconds, then take one if available.
// ARGV: capacity, refill rate per second, now (unix seconds).
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local info = redis.call("HMGET", KEYS[1], "tokens", "last_time")
local tokens = tonumber(info[1])
local last_time = tonumber(info[2])
if tokens == nil then
	tokens = capacity
	last_time = now
end

tokens = math.min(capacity, tokens + math.max(0, now - last_time) * rate)
if tokens < 1 then
	return 0
end
redis.call("HSET", KEYS[1], "tokens", tokens - 1, "last_time", now)
redis.call("EXPIRE", KEYS[1], 60)
return 1
`)

type TokenBucketStrategy struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *TokenBucketStrategy) Allow(ctx context.Context, rdb redis.Scripter, key string, limit int, window time.Duration) (bool, error) {
	rate := float64(limit) / window.Seconds()
	if rate <= 0 {
		rate = 1
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	result, err := tokenBucketScript.Run(ctx, rdb, []string{key}, limit, rate, now().Unix()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
