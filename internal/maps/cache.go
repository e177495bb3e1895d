package maps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const distanceKeyPrefix = "distance:"

// RedisDistanceCache stores routed distances keyed by postal code pair.
type RedisDistanceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDistanceCache(rdb *redis.Client, ttl time.Duration) *RedisDistanceCache {
	return &RedisDistanceCache{rdb: rdb, ttl: ttl}
}

func (c *RedisDistanceCache) Get(ctx context.Context, key string) (float64, bool, error) {
	v, err := c.rdb.Get(ctx, distanceKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	km, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached distance %q: %w", v, err)
	}
	return km, true, nil
}

func (c *RedisDistanceCache) Set(ctx context.Context, key string, km float64) error {
	return c.rdb.Set(ctx, distanceKeyPrefix+key, strconv.FormatFloat(km, 'f', 2, 64), c.ttl).Err()
}

// cacheKey orders the postal codes so A→B and B→A share one entry.
func cacheKey(profile, a, b string) (string, bool) {
	a, b = normalizePostalCode(a), normalizePostalCode(b)
	if a == "" || b == "" {
		return "", false
	}
	if b < a {
		a, b = b, a
	}
	return profile + ":" + a + ":" + b, true
}

// normalizePostalCode keeps a five digit German postal code, or nothing.
func normalizePostalCode(v string) string {
	v = strings.TrimSpace(v)
	if len(v) != 5 {
		return ""
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return v
}
