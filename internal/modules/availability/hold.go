// README: Short-lived Redis holds that serialize commits for the same start slot.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const holdTTL = 30 * time.Second

var ErrSlotHeld = fmt.Errorf("%w: held by another request", ErrCapacityExceeded)

type RedisHolds struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisHolds(rdb *redis.Client) *RedisHolds {
	return &RedisHolds{rdb: rdb, ttl: holdTTL}
}

// Acquire takes the hold for start. It returns false when another request
// owns it.
func (h *RedisHolds) Acquire(ctx context.Context, start time.Time, owner string) (bool, error) {
	return h.rdb.SetNX(ctx, holdKey(start), owner, h.ttl).Result()
}

func (h *RedisHolds) Release(ctx context.Context, start time.Time, owner string) error {
	key := holdKey(start)
	val, err := h.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != owner {
		return nil
	}
	return h.rdb.Del(ctx, key).Err()
}

func holdKey(start time.Time) string {
	return "slot_hold:" + start.UTC().Format(time.RFC3339)
}
