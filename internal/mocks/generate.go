// Package mocks provides mock implementations of the session ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockKeyValueStore(ctrl)
//	store.EXPECT().Get(gomock.Any(), "accessToken").Return("T1", true, nil)
package mocks

// Generate mock for KeyValueStore interface from internal/ports package.
// This creates MockKeyValueStore with methods: Get, Set, Remove, RemoveMany
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=kv_store_mock.go github.com/civicwatch/civicwatch/internal/ports KeyValueStore

// Generate mock for TokenRefresher interface from internal/ports package.
// This creates MockTokenRefresher with methods: Refresh
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_refresher_mock.go github.com/civicwatch/civicwatch/internal/ports TokenRefresher
