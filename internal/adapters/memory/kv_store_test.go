package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, ok, err := s.Get(ctx, "accessToken")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "accessToken", "T1"))
	require.NoError(t, s.Set(ctx, "refreshToken", "R1"))

	v, ok, err := s.Get(ctx, "accessToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T1", v)

	require.NoError(t, s.Remove(ctx, "accessToken"))
	_, ok, err = s.Get(ctx, "accessToken")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RemoveMany(ctx, "accessToken", "refreshToken"))
	assert.Empty(t, s.Snapshot())
}

func TestStore_EmptyKey(t *testing.T) {
	s := NewStore()
	_, _, err := s.Get(context.Background(), "")
	require.Error(t, err)
	require.Error(t, s.Set(context.Background(), "", "v"))
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStoreWith(map[string]string{"k": "v"})
	_, _, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, s.Set(ctx, "k", "v2"), context.Canceled)
	require.ErrorIs(t, s.RemoveMany(ctx, "k"), context.Canceled)
	assert.Equal(t, "v", s.Snapshot()["k"])
}

func TestStore_FailureHooks(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := NewStoreWith(map[string]string{"accessToken": "T1"})
	s.FailGet = func(string) error { return boom }
	s.FailSet = func(string) error { return boom }
	s.FailRemove = func(...string) error { return boom }

	_, _, err := s.Get(ctx, "accessToken")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, s.Set(ctx, "accessToken", "T2"), boom)
	require.ErrorIs(t, s.Remove(ctx, "accessToken"), boom)
	assert.Equal(t, "T1", s.Snapshot()["accessToken"])
}
