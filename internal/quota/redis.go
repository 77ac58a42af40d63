package quota

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const keyPrefix = "ocr_usage:"

// RedisCounter keeps one INCR counter per user and month. Keys expire a day
// after the month they count ends.
type RedisCounter struct {
	rdb redis.Cmdable
}

func NewRedisCounter(rdb redis.Cmdable) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func usageKey(userID, month string) string {
	return keyPrefix + userID + ":" + month
}

func (c *RedisCounter) Used(ctx context.Context, userID, month string) (int64, error) {
	n, err := c.rdb.Get(ctx, usageKey(userID, month)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "quota: redis get")
	}
	return n, nil
}

func (c *RedisCounter) Consume(ctx context.Context, userID, month string, limit int64) (bool, error) {
	key := usageKey(userID, month)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, eris.Wrap(err, "quota: redis incr")
	}
	if n == 1 {
		if err := c.rdb.ExpireAt(ctx, key, expiryFor(month)).Err(); err != nil {
			return false, eris.Wrap(err, "quota: redis expireat")
		}
	}
	if n > limit {
		if err := c.rdb.Decr(ctx, key).Err(); err != nil {
			return false, eris.Wrap(err, "quota: redis decr")
		}
		return false, nil
	}
	return true, nil
}

// releaseScript decrements only a positive counter.
var releaseScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n > 0 then
  return redis.call("DECR", KEYS[1])
end
return 0
`)

func (c *RedisCounter) Release(ctx context.Context, userID, month string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{usageKey(userID, month)}).Err(); err != nil {
		return eris.Wrap(err, "quota: redis release")
	}
	return nil
}

func expiryFor(month string) time.Time {
	start, err := time.ParseInLocation("2006-01-02", month, tokyo)
	if err != nil {
		return time.Now().Add(32 * 24 * time.Hour)
	}
	return NextReset(start).Add(24 * time.Hour)
}
