package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis_v9 "github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis_v9.Client
}

func NewRedisRepo(client *redis_v9.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) SaveStructCached(ctx context.Context, key string, model any, ttl time.Duration) (bool, error) {
	val, err := json.Marshal(model)
	if err != nil {
		return false, fmt.Errorf("error saving struct to cache: %w", err)
	}
	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return false, fmt.Errorf("error saving struct to cache: %w", err)
	}
	return true, nil
}

func (r *RedisRepo) GetStructCached(ctx context.Context, key string, model any) error {
	cached, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return fmt.Errorf("error get struct in cache: %w", err)
	}
	return json.Unmarshal(cached, model)
}

func (r *RedisRepo) DeleteKey(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
