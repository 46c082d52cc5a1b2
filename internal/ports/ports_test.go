package ports_test

import (
	"testing"

	"github.com/civicwatch/civicwatch/internal/adapters/filestore"
	"github.com/civicwatch/civicwatch/internal/adapters/memory"
	"github.com/civicwatch/civicwatch/internal/adapters/postgres"
	"github.com/civicwatch/civicwatch/internal/adapters/redis"
	"github.com/civicwatch/civicwatch/internal/apiclient"
	"github.com/civicwatch/civicwatch/internal/mocks"
	"github.com/civicwatch/civicwatch/internal/ports"
)

// This test only verifies that adapters and mocks conform to the ports at compile time.
func TestImplementationsSatisfyPorts(t *testing.T) {
	t.Helper()

	var _ ports.KeyValueStore = (*memory.Store)(nil)
	var _ ports.KeyValueStore = (*filestore.Store)(nil)
	var _ ports.KeyValueStore = (*redis.KVStore)(nil)
	var _ ports.KeyValueStore = (*postgres.KVStore)(nil)
	var _ ports.KeyValueStore = (*mocks.MockKeyValueStore)(nil)
	var _ ports.TokenRefresher = (*apiclient.Refresher)(nil)
	var _ ports.TokenRefresher = (*mocks.MockTokenRefresher)(nil)
}
