package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveScript keeps one sorted-set member per reservation scored by its
// millisecond timestamp. Members older than the window are trimmed first, so
// the count is always over the rolling window ending at now.
//
// KEYS[1] window key; ARGV now_ms, window_ms, limit, member.
// Returns {taken, used, reset_ms}.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
if used >= limit then
  local newest = redis.call('ZRANGE', key, -1, -1, 'WITHSCORES')
  return {0, used, tonumber(newest[2]) + window}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, used + 1, now + window}
`)

// RedisLimiter is a rolling-window limiter stored in Redis, for sharing one
// provider quota between several certd processes. Reservations are taken by a
// single script call, so concurrent callers never exceed the limit.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	key    string
	limit  int
	window time.Duration
}

// NewRedisLimiter returns a limiter counting under key "certd:ratelimit:<name>".
func NewRedisLimiter(rdb redis.UniversalClient, name string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, key: "certd:ratelimit:" + name, limit: limit, window: window}
}

func (l *RedisLimiter) enabled() bool { return l.limit > 0 && l.window > 0 }

func (l *RedisLimiter) Reserve(ctx context.Context, now time.Time) (Reservation, error) {
	if !l.enabled() {
		return Reservation{At: now}, nil
	}
	token := uuid.NewString()
	res, err := reserveScript.Run(ctx, l.rdb, []string{l.key},
		now.UnixMilli(), l.window.Milliseconds(), l.limit, token).Int64Slice()
	if err != nil {
		return Reservation{}, fmt.Errorf("redis limiter reserve: %w", err)
	}
	if len(res) != 3 {
		return Reservation{}, fmt.Errorf("redis limiter reserve: unexpected reply %v", res)
	}
	q := Quota{Limit: l.limit, Remaining: l.limit - int(res[1]), ResetAt: time.UnixMilli(res[2])}
	if q.Remaining < 0 {
		q.Remaining = 0
	}
	if res[0] == 0 {
		return Reservation{Quota: q}, ErrCapacityExceeded
	}
	return Reservation{Quota: q, At: now, Token: token}, nil
}

func (l *RedisLimiter) Release(ctx context.Context, r Reservation) error {
	if r.Token == "" {
		return nil
	}
	if err := l.rdb.ZRem(ctx, l.key, r.Token).Err(); err != nil {
		return fmt.Errorf("redis limiter release: %w", err)
	}
	return nil
}

func (l *RedisLimiter) Cadence() time.Duration {
	if !l.enabled() {
		return 0
	}
	return l.window / time.Duration(l.limit)
}
