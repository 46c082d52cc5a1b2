// Package tokenstate binds persisted credentials to observable in-memory values.
package tokenstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/civicwatch/civicwatch/internal/ports"
)

// Value is a point-in-time view of a Holder.
type Value struct {
	Loading bool
	Token   string
	Present bool
}

// ErrorHandler receives persistence failures for a key.
type ErrorHandler func(key string, err error)

// Option configures a Holder or Vault.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	onError ErrorHandler
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithErrorHandler registers a callback for persistence failures.
// Failures are still returned to the caller.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.onError = h }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Holder keeps one stored key in memory.
//
// It starts loading with no value. Load moves it to the stored value exactly once.
// Set and Clear update memory, notify subscribers, then persist.
// An explicit write before the initial load completes wins over the loaded value.
type Holder struct {
	key   string
	store ports.KeyValueStore
	opts  options

	mu      sync.Mutex
	loading bool
	token   string
	present bool
	written bool
	subs    map[int]func(Value)
	nextSub int

	loadOnce sync.Once
	loadErr  error
}

// NewHolder creates a Holder for key backed by store.
func NewHolder(store ports.KeyValueStore, key string, opts ...Option) *Holder {
	return &Holder{
		key:     key,
		store:   store,
		opts:    buildOptions(opts),
		loading: true,
		subs:    make(map[int]func(Value)),
	}
}

// Key returns the storage key.
func (h *Holder) Key() string { return h.key }

// Load reads the stored value once. Later calls return the first result.
// A failed read leaves the holder loaded with no value.
func (h *Holder) Load(ctx context.Context) error {
	h.loadOnce.Do(func() {
		v, ok, err := h.store.Get(ctx, h.key)
		if err != nil {
			h.loadErr = fmt.Errorf("load %s: %w", h.key, err)
			v, ok = "", false
		}

		h.mu.Lock()
		changed := h.loading
		if !h.written {
			changed = changed || h.present != ok || h.token != v
			h.token, h.present = v, ok
		}
		h.loading = false
		snap := h.valueLocked()
		subs := h.subscribersLocked()
		h.mu.Unlock()

		if changed {
			notify(subs, snap)
		}
		if h.loadErr != nil {
			h.report(h.loadErr)
		}
	})
	return h.loadErr
}

// Get returns the in-memory value.
func (h *Holder) Get() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token, h.present
}

// Value returns the full in-memory state including the loading flag.
func (h *Holder) Value() Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.valueLocked()
}

// Set stores token in memory, notifies subscribers, then persists it.
func (h *Holder) Set(ctx context.Context, token string) error {
	h.setLocal(token, true)
	if err := h.store.Set(ctx, h.key, token); err != nil {
		return h.persistFailed("set", err)
	}
	return nil
}

// Clear removes the value from memory, notifies subscribers, then removes it from storage.
func (h *Holder) Clear(ctx context.Context) error {
	h.setLocal("", false)
	if err := h.store.Remove(ctx, h.key); err != nil {
		return h.persistFailed("remove", err)
	}
	return nil
}

// Subscribe registers fn for every change. The returned func unregisters it.
func (h *Holder) Subscribe(fn func(Value)) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Holder) setLocal(token string, present bool) {
	h.mu.Lock()
	h.token, h.present = token, present
	h.written = true
	h.loading = false
	snap := h.valueLocked()
	subs := h.subscribersLocked()
	h.mu.Unlock()

	notify(subs, snap)
}

func (h *Holder) persistFailed(op string, err error) error {
	wrapped := fmt.Errorf("persist %s %s: %w", op, h.key, err)
	h.report(wrapped)
	return wrapped
}

func (h *Holder) report(err error) {
	h.opts.logger.Warn("token storage failure", "key", h.key, "error", err)
	if h.opts.onError != nil {
		h.opts.onError(h.key, err)
	}
}

func (h *Holder) valueLocked() Value {
	return Value{Loading: h.loading, Token: h.token, Present: h.present}
}

func (h *Holder) subscribersLocked() []func(Value) {
	out := make([]func(Value), 0, len(h.subs))
	for _, fn := range h.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Value), v Value) {
	for _, fn := range subs {
		fn(v)
	}
}
