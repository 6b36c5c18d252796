package port

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Remove when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
)

//go:generate mockgen -destination=../service/mocks/engine_mock.go -package=mocks -source=engine.go

// Engine defines the capability set a storage backend must provide.
// Exactly two implementations exist: the log-structured store (bitcask)
// and the embedded bbolt adapter. The backend is selected once at
// startup; there is no runtime switching.
type Engine interface {
	// Set stores the value under key. The write is durable before
	// Set returns successfully.
	Set(ctx context.Context, key, value string) error

	// Get returns the latest value for key. A missing key is reported
	// via found=false, not an error.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Remove deletes key. Removing a missing key returns ErrKeyNotFound
	// and leaves the store unchanged.
	Remove(ctx context.Context, key string) error

	// Close flushes and releases the backend.
	Close() error
}
