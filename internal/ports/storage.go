package ports

// Package ports defines interfaces (hexagonal ports) for session storage and token refresh.
// Implementations live in internal/adapters and internal/apiclient; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/civicwatch/civicwatch/internal/domain/auth"
)

// KeyValueStore is durable storage for small string values.
// A missing key is reported as ok=false with a nil error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// RemoveMany deletes all keys in one operation where the backend allows it.
	RemoveMany(ctx context.Context, keys ...string) error
}

// TokenRefresher exchanges a refresh token for a new credential pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error)
}
