package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civicwatch/civicwatch/config"
	"github.com/civicwatch/civicwatch/internal/adapters/filestore"
	"github.com/civicwatch/civicwatch/internal/adapters/memory"
	"github.com/civicwatch/civicwatch/internal/adapters/postgres"
	redisadapter "github.com/civicwatch/civicwatch/internal/adapters/redis"
	"github.com/civicwatch/civicwatch/internal/ports"
)

// StoreConfig contains configuration for the credential store.
type StoreConfig struct {
	Storage  config.StorageConfig
	Postgres config.DBConfig
	Redis    config.RedisConfig
	Logger   *slog.Logger
}

// Store is an opened credential store plus the hook that releases its connections.
type Store struct {
	ports.KeyValueStore
	Mode  config.StorageMode
	close func()
}

// Close releases backend connections. It is safe to call on a nil Store.
func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStore opens the key-value store selected by the storage mode.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	switch cfg.Storage.Mode {
	case config.StorageModeMemory:
		logger.Warn("using in-memory credential store; the session ends with the process")
		return &Store{KeyValueStore: memory.NewStore(), Mode: cfg.Storage.Mode}, nil

	case config.StorageModeRedis:
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis store: %w", err)
		}
		return &Store{
			KeyValueStore: redisadapter.NewKVStore(client, cfg.Storage.KeyPrefix),
			Mode:          cfg.Storage.Mode,
			close: func() {
				if err := client.Close(); err != nil {
					logger.Warn("close redis client", "error", err)
				}
			},
		}, nil

	case config.StorageModePostgres:
		pool, err := ConnectPostgres(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres store: %w", err)
		}
		kv := postgres.NewKVStore(pool, cfg.Storage.Table)
		if err := kv.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure session table: %w", err)
		}
		return &Store{KeyValueStore: kv, Mode: cfg.Storage.Mode, close: pool.Close}, nil

	case config.StorageModeFile, "":
		path := cfg.Storage.FilePath
		if path == "" {
			path = config.DefaultStorageFilePath()
		}
		fs, err := filestore.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		logger.Debug("using file credential store", "path", fs.Path())
		return &Store{KeyValueStore: fs, Mode: config.StorageModeFile}, nil

	default:
		return nil, fmt.Errorf("unsupported storage mode %q", cfg.Storage.Mode)
	}
}
