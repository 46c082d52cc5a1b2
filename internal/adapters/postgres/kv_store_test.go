package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/civicwatch/civicwatch/internal/errors"
	"github.com/civicwatch/civicwatch/internal/testutil"
)

// newTestStore returns a store on a per-test table that is dropped on cleanup.
func newTestStore(t *testing.T) *KVStore {
	t.Helper()
	pool := testutil.SetupTestPool(t)

	table := fmt.Sprintf("session_kv_test_%d", time.Now().UnixNano())
	store := NewKVStore(pool, table)
	require.NoError(t, store.EnsureSchema(context.Background()))

	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+store.table); err != nil {
			t.Logf("warning: drop %s: %v", table, err)
		}
	})
	return store
}

func TestKVStore_SetGetUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "accessToken")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "accessToken", "T1"))
	require.NoError(t, store.Set(ctx, "accessToken", "T2"))

	v, ok, err := store.Get(ctx, "accessToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T2", v)
}

func TestKVStore_RemoveMany(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "accessToken", "T1"))
	require.NoError(t, store.Set(ctx, "refreshToken", "R1"))
	require.NoError(t, store.RemoveMany(ctx, "accessToken", "refreshToken", "missing"))

	for _, k := range []string{"accessToken", "refreshToken"} {
		_, ok, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func TestKVStore_EnsureSchemaIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
}

func TestKVStore_MissingTable(t *testing.T) {
	pool := testutil.SetupTestPool(t)
	store := NewKVStore(pool, "session_kv_does_not_exist")

	_, _, err := store.Get(context.Background(), "accessToken")
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))
	assert.Contains(t, err.Error(), "schema setup")
}

func TestKVStore_EmptyKey(t *testing.T) {
	store := NewKVStore(nil, "")

	_, _, err := store.Get(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
	assert.True(t, apperrors.IsValidation(store.Set(context.Background(), "", "v")))
	assert.NoError(t, store.RemoveMany(context.Background()))
	assert.Equal(t, `"session_kv"`, store.table)
}
