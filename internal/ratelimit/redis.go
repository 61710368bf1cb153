package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	windowKeyPrefix = "mp:rl:"
	blockKeyPrefix  = "mp:rl:block:"
)

// Fixed-window consume. A single Lua execution keeps the check-and-deduct
// atomic, so total grants across one window never exceed the limit.
//
// Overspending attempts roll the counter back and arm a short block key so
// a hot account stops hammering the window boundary.
var consumeScript = redis.NewScript(`
-- KEYS[1] = window counter key
-- KEYS[2] = block key
-- ARGV[1] = cost
-- ARGV[2] = limit
-- ARGV[3] = window ttl_ms
-- ARGV[4] = block ttl_ms
--
-- Returns:
--  1 if tokens were deducted
--  0 if rejected (blocked or limit reached)
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end

local current = redis.call('INCRBY', KEYS[1], ARGV[1])
if current == tonumber(ARGV[1]) then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
  -- Ensure TTL exists even if the key predates this window
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[3])
  end
end

if current > tonumber(ARGV[2]) then
  redis.call('DECRBY', KEYS[1], ARGV[1])
  redis.call('SET', KEYS[2], 1, 'PX', ARGV[4])
  return 0
end
return 1
`)

// RedisLimiter is the production Limiter, shared across workers and
// processes through Redis.
type RedisLimiter struct {
	rdb *redis.Client
	cfg Config
	log *slog.Logger
}

func NewRedisLimiter(rdb *redis.Client, cfg Config, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RedisLimiter{rdb: rdb, cfg: cfg.withDefaults(), log: log}
}

func (l *RedisLimiter) ConsumeToken(ctx context.Context, accountID string, cost int) (bool, error) {
	if accountID == "" {
		l.log.Warn("consume token called with empty account id")
		return false, nil
	}
	if cost <= 0 {
		l.log.Warn("consume token called with invalid cost", "account_id", accountID, "cost", cost)
		return false, nil
	}

	keys := []string{windowKeyPrefix + accountID, blockKeyPrefix + accountID}
	res, err := consumeScript.Run(ctx, l.rdb, keys,
		cost,
		l.cfg.Points,
		l.cfg.Window.Milliseconds(),
		l.cfg.BlockWindow.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: consume for %s: %w", accountID, err)
	}
	return res == 1, nil
}
