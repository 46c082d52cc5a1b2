package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/civicwatch/civicwatch/internal/errors"
	"github.com/civicwatch/civicwatch/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestKVStore_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	store := NewKVStore(client, "test:")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "accessToken", "T1"))

	v, ok, err := store.Get(ctx, "accessToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T1", v)

	raw, err := client.Get(ctx, "test:accessToken").Result()
	require.NoError(t, err)
	assert.Equal(t, "T1", raw)

	ttl, err := client.TTL(ctx, "test:accessToken").Result()
	require.NoError(t, err)
	assert.Less(t, ttl, time.Duration(0), "value should not expire")
}

func TestKVStore_GetMissing(t *testing.T) {
	client := setupTestRedis(t)
	store := NewKVStore(client, "test:")

	v, ok, err := store.Get(context.Background(), "refreshToken")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestKVStore_RemoveMany(t *testing.T) {
	client := setupTestRedis(t)
	store := NewKVStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "accessToken", "T1"))
	require.NoError(t, store.Set(ctx, "refreshToken", "R1"))
	require.NoError(t, store.Set(ctx, "other", "keep"))

	require.NoError(t, store.RemoveMany(ctx, "accessToken", "refreshToken"))

	for _, k := range []string{"accessToken", "refreshToken"} {
		_, ok, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
	v, ok, err := store.Get(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "keep", v)

	n, err := client.Exists(ctx, DefaultPrefix+"other").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestKVStore_RemoveMissingIsNoop(t *testing.T) {
	client := setupTestRedis(t)
	store := NewKVStore(client, "test:")

	require.NoError(t, store.Remove(context.Background(), "accessToken"))
	require.NoError(t, store.RemoveMany(context.Background()))
}

func TestKVStore_EmptyKey(t *testing.T) {
	store := NewKVStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")

	_, _, err := store.Get(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
	assert.True(t, apperrors.IsValidation(store.Set(context.Background(), "", "v")))
}

func TestKVStore_CanceledContext(t *testing.T) {
	client := setupTestRedis(t)
	store := NewKVStore(client, "test:")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Set(ctx, "accessToken", "T1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCanceled(err))
}
