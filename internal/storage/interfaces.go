package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// =============================================
// BACKEND
// =============================================

// Backend is a durable string key-value capability. Keys passed to a Backend
// are already namespaced by Store.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Closer is implemented by backends that hold connections.
type Closer interface {
	Close() error
}
