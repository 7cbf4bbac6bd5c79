package backend

import (
	"context"

	"receipts/internal/blobstore"
	"receipts/internal/recordstore"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result holds the stores built for one backend type.
type Result struct {
	Type    Type
	Blobs   blobstore.Store
	Records recordstore.Store
	Cleanup CleanupFunc
}

// Close runs the cleanup function if there is one.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Ping reports whether the record store is reachable. Stores without a
// health check are assumed ready.
func (r *Result) Ping(ctx context.Context) error {
	if p, ok := r.Records.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Persistent reports whether data survives a restart.
func (r *Result) Persistent() bool {
	return r.Type != MemoryBackend
}

// Factory creates backends based on configuration.
type Factory interface {
	Create(ctx context.Context, cfg Config) (*Result, error)
}
