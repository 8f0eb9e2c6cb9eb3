package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmaksim/inventory-service/internal/domain"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	key := cacheKey(productID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec domain.InventoryRecord
	if err2 := json.Unmarshal(data, &rec); err2 != nil {
		return nil, fmt.Errorf("unmarshal record failed: %w", err2)
	}

	return &rec, nil
}

func (r RedisCache) Set(ctx context.Context, productID string, rec *domain.InventoryRecord) error {
	key := cacheKey(productID)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record failed: %w", err)
	}

	// Jitter spreads expiry so hot keys don't refill at once.
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, key, data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, productID string) error {
	if err := r.client.Del(ctx, cacheKey(productID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(productID string) string {
	return fmt.Sprintf("inventory:%s", productID)
}
