package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StorageMode selects the credential storage backend.
type StorageMode string

const (
	// StorageModeFile keeps credentials in a JSON file on disk.
	StorageModeFile StorageMode = "file"
	// StorageModeMemory keeps credentials for the lifetime of the process.
	StorageModeMemory StorageMode = "memory"
	// StorageModeRedis shares credentials through Redis.
	StorageModeRedis StorageMode = "redis"
	// StorageModePostgres shares credentials through a PostgreSQL table.
	StorageModePostgres StorageMode = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for StorageMode.
func (m *StorageMode) UnmarshalText(text []byte) error {
	v := StorageMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StorageModeFile, StorageModeMemory, StorageModeRedis, StorageModePostgres:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid StorageMode: %q (valid options: file, memory, redis, postgres)", string(text))
	}
}

// StorageConfig controls where the token pair is persisted.
type StorageConfig struct {
	Mode StorageMode `env:"STORAGE_MODE" envDefault:"file"`

	// FilePath is the JSON document used by the file mode. Defaults to ~/.civicwatch/session.json.
	FilePath string `env:"STORAGE_FILE_PATH"`

	// KeyPrefix namespaces keys in Redis.
	KeyPrefix string `env:"STORAGE_KEY_PREFIX" envDefault:"civicwatch:"`

	// Table is the PostgreSQL table used by the postgres mode.
	Table string `env:"STORAGE_TABLE" envDefault:"session_kv"`
}

// Sanitize fills the default file path and trims names.
func (c *StorageConfig) Sanitize() {
	if c.Mode == "" {
		c.Mode = StorageModeFile
	}
	c.FilePath = strings.TrimSpace(c.FilePath)
	if c.FilePath == "" {
		c.FilePath = DefaultStorageFilePath()
	}
	c.KeyPrefix = strings.TrimSpace(c.KeyPrefix)
	if c.Table = strings.TrimSpace(c.Table); c.Table == "" {
		c.Table = "session_kv"
	}
}

// DefaultStorageFilePath returns ~/.civicwatch/session.json, or a relative path when no home is known.
func DefaultStorageFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".civicwatch", "session.json")
	}
	return filepath.Join(home, ".civicwatch", "session.json")
}
