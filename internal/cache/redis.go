package cache

import (
	"context"
	"time"
)

// RedisClient is the subset of pkg/redis.Client the backend uses.
type RedisClient interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushPrefix(ctx context.Context, prefix string) (int64, error)
	CountPrefix(ctx context.Context, prefix string) (int, error)
}

// RedisBackend keeps results in Redis, which enforces the TTL itself. Len
// only counts keys under the backend's own namespace.
type RedisBackend struct {
	client    RedisClient
	namespace string
}

func NewRedisBackend(client RedisClient, namespace string) *RedisBackend {
	return &RedisBackend{client: client, namespace: namespace}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.client.GetBytes(ctx, key)
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl)
}

func (b *RedisBackend) FlushPrefix(ctx context.Context, prefix string) (int64, error) {
	return b.client.FlushPrefix(ctx, prefix)
}

func (b *RedisBackend) Len(ctx context.Context) (int, error) {
	return b.client.CountPrefix(ctx, b.namespace)
}
