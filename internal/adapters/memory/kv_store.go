package memory

// Package memory provides a process-lifetime key-value store for ephemeral runs and tests.

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// Store is an in-memory ports.KeyValueStore. It is safe for concurrent use.
// The Fail* hooks inject errors for tests; they are consulted before every call.
type Store struct {
	mu     sync.RWMutex
	values map[string]string

	FailGet    func(key string) error
	FailSet    func(key string) error
	FailRemove func(keys ...string) error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// NewStoreWith creates a Store seeded with initial values.
func NewStoreWith(initial map[string]string) *Store {
	s := NewStore()
	maps.Copy(s.values, initial)
	return s
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if key == "" {
		return "", false, errors.New("key cannot be empty")
	}
	if s.FailGet != nil {
		if err := s.FailGet(key); err != nil {
			return "", false, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if s.FailSet != nil {
		if err := s.FailSet(key); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.RemoveMany(ctx, key)
}

func (s *Store) RemoveMany(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailRemove != nil {
		if err := s.FailRemove(keys...); err != nil {
			return err
		}
	}

	s.mu.Lock()
	for _, k := range keys {
		delete(s.values, k)
	}
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of all stored values.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}
