package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache parks the drop-off code plaintext for the public tracking page.
// PostgreSQL only ever stores the hash; this is the single place the
// plaintext survives creation, and it evaporates with the code's TTL.
type Cache interface {
	StoreDropOTP(ctx context.Context, deliveryID, code string, ttl time.Duration) error
	DropOTP(ctx context.Context, deliveryID string) (string, error)
}

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func dropOTPKey(deliveryID string) string {
	return fmt.Sprintf("delivery:%s:drop_otp", deliveryID)
}

func (c *RedisCache) StoreDropOTP(ctx context.Context, deliveryID, code string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, dropOTPKey(deliveryID), code, ttl).Err(); err != nil {
		return fmt.Errorf("cache.StoreDropOTP: %w", err)
	}
	return nil
}

// DropOTP returns "" without error when the code has lapsed from the cache;
// the tracking page simply omits it.
func (c *RedisCache) DropOTP(ctx context.Context, deliveryID string) (string, error) {
	code, err := c.rdb.Get(ctx, dropOTPKey(deliveryID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("cache.DropOTP: %w", err)
	}
	return code, nil
}
