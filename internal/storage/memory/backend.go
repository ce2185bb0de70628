// Package memory provides an in-process storage backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vultisig/tutor-chat/internal/storage"
)

// Backend keeps values in a map. A positive quota limits the total stored bytes.
type Backend struct {
	mu     sync.RWMutex
	values map[string]string
	quota  int
	used   int
}

// New creates an unlimited Backend.
func New() *Backend {
	return &Backend{values: make(map[string]string)}
}

// WithQuota creates a Backend that rejects writes once maxBytes would be exceeded.
func WithQuota(maxBytes int) *Backend {
	b := New()
	b.quota = maxBytes
	return b
}

func (b *Backend) Get(_ context.Context, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := b.used - len(b.values[key]) + len(value)
	if b.quota > 0 && used > b.quota {
		return fmt.Errorf("set %q (%d bytes): %w", key, len(value), storage.ErrQuotaExceeded)
	}
	b.values[key] = value
	b.used = used
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.used -= len(b.values[key])
	delete(b.values, key)
	return nil
}

func (b *Backend) Close() error { return nil }
