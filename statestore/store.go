package statestore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("statestore: key not found")

	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("statestore: store is closed")
)

// Store persists JSON-serializable values under string keys.
type Store interface {
	// Save serializes value and stores it under key, replacing any
	// previous value.
	Save(ctx context.Context, key string, value any) error

	// Load reads the value stored under key into out. Returns ErrNotFound
	// when the key is absent.
	Load(ctx context.Context, key string, out any) error

	// Delete removes the value stored under key. Deleting an absent key
	// is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store's resources.
	Close() error
}
