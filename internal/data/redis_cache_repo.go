package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheRepo implements the CacheRepository port on Redis. The engine
// uses it for provider account-info snapshots and callback dedupe markers.
type RedisCacheRepo struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisCacheRepo wraps the given Redis client. A non-empty namespace is
// prepended to every key so multiple deployments can share one instance.
func NewRedisCacheRepo(client redis.UniversalClient, namespace string) *RedisCacheRepo {
	return &RedisCacheRepo{client: client, namespace: namespace}
}

func (r *RedisCacheRepo) key(key string) (string, error) {
	if key == "" {
		return "", errors.New("cache key cannot be empty")
	}
	if r.namespace == "" {
		return key, nil
	}
	return r.namespace + ":" + key, nil
}

// Get retrieves a value by key. A missing key returns (nil, nil).
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := r.key(key)
	if err != nil {
		return nil, err
	}
	value, err := r.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", k, err)
	}
	return value, nil
}

// Set stores a value under key with the given TTL.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

// SetIfNotExists sets key only when absent and reports whether it was set.
// SET NX with a TTL is a single atomic command, so concurrent callers cannot
// both win.
func (r *RedisCacheRepo) SetIfNotExists(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	won, err := r.client.SetNX(ctx, k, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", k, err)
	}
	return won, nil
}

// Delete removes a key and reports whether it existed.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	removed, err := r.client.Del(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %s: %w", k, err)
	}
	return removed > 0, nil
}
