package services

import (
	"context"

	"receipts/internal/core"
)

// EventPublisher is notified after every aggregate write or delete. agg is
// nil when the period's record was removed.
type EventPublisher interface {
	PublishPeriodReconciled(ctx context.Context, p core.Period, agg *core.Aggregate) error
}
