package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores values in Redis. Several devices can share one Redis by
// using distinct namespaces.
type RedisBackend struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisBackend creates a Redis-backed store. A zero ttl keeps keys forever.
func NewRedisBackend(client *redis.Client, namespace string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, namespace: namespace, ttl: ttl}
}

func (r *RedisBackend) key(k string) string {
	if r.namespace == "" {
		return k
	}
	return fmt.Sprintf("%s:%s", r.namespace, k)
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return v, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}
	return nil
}
