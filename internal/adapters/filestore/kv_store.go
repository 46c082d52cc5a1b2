package filestore

// Package filestore provides a key-value store persisted as a single JSON document on disk.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// Store persists string values to a JSON file.
// Every write replaces the file atomically (temp file + rename) so a crash never
// leaves a half-written document. It is safe for concurrent use within one process.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a Store backed by path. The file and its parent directory are
// created on first write.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("file store path cannot be empty")
	}
	return &Store{path: filepath.Clean(path)}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if key == "" {
		return "", false, errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.RemoveMany(ctx, key)
}

func (s *Store) RemoveMany(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.write(values)
}

// read loads the document. A missing file is an empty document.
func (s *Store) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return values, nil
}

func (s *Store) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return errors.Join(cause, fmt.Errorf("remove temp file: %w", rmErr))
		}
		return cause
	}

	if _, err = tmp.Write(data); err != nil {
		closeErr := tmp.Close()
		return cleanup(errors.Join(fmt.Errorf("write temp file: %w", err), closeErr))
	}
	if err = tmp.Chmod(fileMode); err != nil {
		closeErr := tmp.Close()
		return cleanup(errors.Join(fmt.Errorf("chmod temp file: %w", err), closeErr))
	}
	if err = tmp.Sync(); err != nil {
		closeErr := tmp.Close()
		return cleanup(errors.Join(fmt.Errorf("sync temp file: %w", err), closeErr))
	}
	if err = tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("close temp file: %w", err))
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return cleanup(fmt.Errorf("replace %s: %w", s.path, err))
	}
	return nil
}
