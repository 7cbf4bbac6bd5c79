// Package blobstore defines the storage port for receipt images.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("blob not found")

// Store persists receipt images under flat string keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix. Order is unspecified.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Presigner is implemented by stores that can hand out time-limited
// download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
