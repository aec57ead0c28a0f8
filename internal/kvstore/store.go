// Package kvstore provides the durable key-value persistence the cache, the
// offline manifest and the download list are stored in. Values are opaque
// byte blobs (JSON in practice) under fixed string keys.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a string-keyed blob store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Stats returns the number of keys starting with prefix and the total size of their values.
	Stats(ctx context.Context, prefix string) (count int, size int64, err error)

	// Close releases any resources held by the store.
	Close() error
}
