package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/civicwatch/civicwatch/config"
	"github.com/civicwatch/civicwatch/internal/adapters/filestore"
	"github.com/civicwatch/civicwatch/internal/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStore_Memory(t *testing.T) {
	store, err := OpenStore(context.Background(), StoreConfig{
		Storage: config.StorageConfig{Mode: config.StorageModeMemory},
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &memory.Store{}, store.KeyValueStore)
	assert.Equal(t, config.StorageModeMemory, store.Mode)
}

func TestOpenStore_FilePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	cfg := StoreConfig{
		Storage: config.StorageConfig{Mode: config.StorageModeFile, FilePath: path},
		Logger:  quietLogger(),
	}

	first, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &filestore.Store{}, first.KeyValueStore)
	require.NoError(t, first.Set(ctx, "accessToken", "a1"))
	first.Close()

	second, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	v, ok, err := second.Get(ctx, "accessToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a1", v)
}

func TestOpenStore_UnsupportedMode(t *testing.T) {
	_, err := OpenStore(context.Background(), StoreConfig{
		Storage: config.StorageConfig{Mode: "tape"},
		Logger:  quietLogger(),
	})
	assert.ErrorContains(t, err, "unsupported storage mode")
}

func TestStore_CloseNil(t *testing.T) {
	var s *Store
	assert.NotPanics(t, s.Close)
}
