package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis store. Keys are namespaced with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

var _ ports.Store = (*RedisStore)(nil)

// Get returns the value stored under key
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrSessionNotFound
		}
		return "", fmt.Errorf("%w: get %s: %v", core.ErrStoreOperationFailed, key, err)
	}
	return value, nil
}

// Set stores value under key without expiration
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", core.ErrStoreOperationFailed, key, err)
	}
	return nil
}

// Delete removes the keys in a single call
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.prefix + key
	}

	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: delete: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}
