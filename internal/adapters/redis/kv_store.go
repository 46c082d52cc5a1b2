package redis

// Package redis provides a Redis-backed key-value store for shared session state.

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/civicwatch/civicwatch/internal/errors"
)

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "civicwatch:"

// KVStore is a Redis-based ports.KeyValueStore.
// Values are stored without TTL; token lifetime is owned by the API server.
type KVStore struct {
	client redis.UniversalClient
	prefix string
}

// NewKVStore creates a Redis key-value store. An empty prefix uses DefaultPrefix.
func NewKVStore(client redis.UniversalClient, prefix string) *KVStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KVStore{client: client, prefix: prefix}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, apperrors.ValidationField("key", "key cannot be empty")
	}

	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, apperrors.MapStorageError("get", err)
	}
	return v, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return apperrors.ValidationField("key", "key cannot be empty")
	}
	return apperrors.MapStorageError("set", s.client.Set(ctx, s.prefix+key, value, 0).Err())
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	return s.RemoveMany(ctx, key)
}

// RemoveMany deletes all keys with a single DEL.
func (s *KVStore) RemoveMany(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		full = append(full, s.prefix+k)
	}
	if len(full) == 0 {
		return nil
	}
	return apperrors.MapStorageError("remove", s.client.Del(ctx, full...).Err())
}
