package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"instoreorder/backend/internal/domain"
)

// RedisAvailabilityCache shares availability results across instances when a
// Redis address is configured.
type RedisAvailabilityCache struct {
	client *redis.Client
}

func NewRedisAvailabilityCache(addr string, password string, db int) *RedisAvailabilityCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAvailabilityCache{client: client}
}

func (c *RedisAvailabilityCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAvailabilityCache) Close() error {
	return c.client.Close()
}

func key(productID string) string {
	return "availability:" + productID
}

func (c *RedisAvailabilityCache) Get(ctx context.Context, productID string) (*domain.AvailabilityResult, bool, error) {
	val, err := c.client.Get(ctx, key(productID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result domain.AvailabilityResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (c *RedisAvailabilityCache) Set(ctx context.Context, productID string, value *domain.AvailabilityResult, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(productID), payload, ttl).Err()
}
