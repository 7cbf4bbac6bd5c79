// Package recordstore defines the storage port for monthly aggregates.
package recordstore

import (
	"context"

	"receipts/internal/core"
)

// Store persists at most one Aggregate per period.
type Store interface {
	// Put creates or overwrites the record for the aggregate's period.
	Put(ctx context.Context, agg core.Aggregate) error
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, p core.Period) (*core.Aggregate, error)
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, p core.Period) error
}
