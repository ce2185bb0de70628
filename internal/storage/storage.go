// Package storage defines the key/value contract the conversation store persists through.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrQuotaExceeded is returned when a backend refuses a write for lack of space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Backend is a string key/value store.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
