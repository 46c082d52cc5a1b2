package tokenstate

import (
	"context"
	"errors"
	"fmt"

	domainauth "github.com/civicwatch/civicwatch/internal/domain/auth"
	"github.com/civicwatch/civicwatch/internal/ports"
)

// Vault holds the access and refresh token pair.
type Vault struct {
	store   ports.KeyValueStore
	access  *Holder
	refresh *Holder
}

// NewVault creates a Vault over store using the standard token keys.
func NewVault(store ports.KeyValueStore, opts ...Option) *Vault {
	return &Vault{
		store:   store,
		access:  NewHolder(store, domainauth.KeyAccessToken, opts...),
		refresh: NewHolder(store, domainauth.KeyRefreshToken, opts...),
	}
}

// Load loads both tokens. Both loads run even if one fails.
func (v *Vault) Load(ctx context.Context) error {
	return errors.Join(v.access.Load(ctx), v.refresh.Load(ctx))
}

// Access returns the access token holder.
func (v *Vault) Access() *Holder { return v.access }

// Refresh returns the refresh token holder.
func (v *Vault) Refresh() *Holder { return v.refresh }

// AccessToken returns the in-memory access token.
func (v *Vault) AccessToken() (string, bool) { return v.access.Get() }

// RefreshToken returns the in-memory refresh token.
func (v *Vault) RefreshToken() (string, bool) { return v.refresh.Get() }

// Replace stores a freshly issued pair.
// An empty RefreshToken keeps the current refresh token.
func (v *Vault) Replace(ctx context.Context, pair domainauth.TokenPair) error {
	errAccess := v.access.Set(ctx, pair.AccessToken)
	if pair.RefreshToken == "" {
		return errAccess
	}
	return errors.Join(errAccess, v.refresh.Set(ctx, pair.RefreshToken))
}

// ClearRefreshToken removes only the refresh token.
func (v *Vault) ClearRefreshToken(ctx context.Context) error {
	return v.refresh.Clear(ctx)
}

// Clear drops both tokens from memory, then removes both keys in one storage call.
func (v *Vault) Clear(ctx context.Context) error {
	v.access.setLocal("", false)
	v.refresh.setLocal("", false)

	if err := v.store.RemoveMany(ctx, v.access.key, v.refresh.key); err != nil {
		wrapped := fmt.Errorf("persist clear credentials: %w", err)
		v.access.report(wrapped)
		return wrapped
	}
	return nil
}
