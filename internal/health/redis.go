package health

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"messaging-platform/internal/account"
)

const scoreKeyPrefix = "mp:health:score:"

// Atomic score update: seed absent keys with the default, apply the delta
// with INCRBY, and issue a corrective write only when clamping actually
// changed the value.
var updateScoreScript = redis.NewScript(`
-- KEYS[1] = score key
-- ARGV[1] = delta
-- ARGV[2] = default score
-- ARGV[3] = min score
-- ARGV[4] = max score
redis.call('SETNX', KEYS[1], ARGV[2])
local raw = redis.call('INCRBY', KEYS[1], ARGV[1])
if raw < tonumber(ARGV[3]) then
  raw = tonumber(ARGV[3])
  redis.call('SET', KEYS[1], raw)
elseif raw > tonumber(ARGV[4]) then
  raw = tonumber(ARGV[4])
  redis.call('SET', KEYS[1], raw)
end
return raw
`)

// RedisStore keeps health scores in Redis so that concurrent workers on
// different connections see a single consistent score per account.
// Commutative deltas from concurrent jobs both apply; they never overwrite
// one another.
type RedisStore struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisStore(rdb *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{rdb: rdb, log: log}
}

func (s *RedisStore) Score(ctx context.Context, accountID string) int {
	key := scoreKey(accountID)
	raw, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return DefaultScore
	}
	if err != nil {
		// Degrade: a decision must not fail because the score is unreadable.
		s.log.Error("health score read failed", "account_id", accountID, "err", err)
		return DefaultScore
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		s.log.Error("health score unparseable", "account_id", accountID, "raw", raw)
		return DefaultScore
	}
	return score
}

func (s *RedisStore) UpdateScore(ctx context.Context, accountID string, delta int) (int, error) {
	res, err := updateScoreScript.Run(ctx, s.rdb, []string{scoreKey(accountID)},
		delta, DefaultScore, account.MinScore, account.MaxScore).Int()
	if err != nil {
		return 0, fmt.Errorf("health: update score for %s: %w", accountID, err)
	}
	return res, nil
}

func scoreKey(accountID string) string {
	return scoreKeyPrefix + accountID
}
