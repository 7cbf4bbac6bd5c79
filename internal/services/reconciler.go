package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"receipts/internal/core"
	applog "receipts/internal/log"
	"receipts/internal/recordstore"
)

// Reconciler derives each period's aggregate from its receipt keys. It is
// the only writer of aggregate records.
//
// Concurrent reconciliations of the same period are last-writer-wins: each
// run overwrites the record with whatever listing it observed.
type Reconciler struct {
	receipts *ReceiptStore
	records  recordstore.Store
	events   EventPublisher
	now      func() time.Time
	log      *slog.Logger
}

func NewReconciler(receipts *ReceiptStore, records recordstore.Store, events EventPublisher, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		receipts: receipts,
		records:  records,
		events:   events,
		now:      time.Now,
		log:      logger.With(applog.FieldComponent, applog.ComponentReconciler),
	}
}

// RecalculatePeriodTotal sums the amounts encoded in the period's keys.
// Keys that do not parse, or whose amount would overflow the total, are left
// out of both the sum and the count.
func (r *Reconciler) RecalculatePeriodTotal(ctx context.Context, p core.Period) (int64, int, error) {
	keys, err := r.receipts.ListReceiptKeys(ctx, p)
	if err != nil {
		return 0, 0, err
	}
	var (
		total int64
		count int
	)
	for _, key := range keys {
		amount, ok := core.ParseAmount(key)
		if !ok {
			r.log.WarnContext(ctx, "Skipping receipt with unrecognized key",
				applog.FieldReceiptKey, key,
				applog.FieldYear, p.Year,
				applog.FieldMonth, p.Month)
			continue
		}
		next, ok := core.AddAmount(total, amount)
		if !ok {
			r.log.WarnContext(ctx, "Skipping receipt whose amount overflows the period total",
				applog.FieldReceiptKey, key,
				applog.FieldAmount, amount,
				applog.FieldYear, p.Year,
				applog.FieldMonth, p.Month)
			continue
		}
		total = next
		count++
	}
	return total, count, nil
}

// ReconcileAndPersist recomputes the period and overwrites its record, or
// deletes the record when no counted receipts remain. A nil aggregate means
// the record is now absent.
func (r *Reconciler) ReconcileAndPersist(ctx context.Context, p core.Period) (*core.Aggregate, error) {
	total, count, err := r.RecalculatePeriodTotal(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.persist(ctx, p, total, count)
}

// persist writes total and count as the period's record, or removes the
// record when count is zero.
func (r *Reconciler) persist(ctx context.Context, p core.Period, total int64, count int) (*core.Aggregate, error) {
	if count == 0 {
		if err := r.deleteAggregate(ctx, p); err != nil {
			return nil, err
		}
		r.publish(ctx, p, nil)
		return nil, nil
	}

	agg := core.Aggregate{
		Year:         p.Year,
		Month:        p.Month,
		TotalAmount:  total,
		ReceiptCount: count,
		UpdatedAt:    r.now().UTC(),
	}
	if err := r.records.Put(ctx, agg); err != nil {
		return nil, fmt.Errorf("save aggregate %s: %w", p, err)
	}
	r.log.InfoContext(ctx, "Aggregate saved",
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		applog.FieldTotalAmount, total,
		applog.FieldReceiptCount, count)
	r.publish(ctx, p, &agg)
	return &agg, nil
}

func (r *Reconciler) deleteAggregate(ctx context.Context, p core.Period) error {
	if err := r.records.Delete(ctx, p); err != nil {
		return fmt.Errorf("delete aggregate %s: %w", p, err)
	}
	r.log.InfoContext(ctx, "Aggregate removed",
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month)
	return nil
}

func (r *Reconciler) publish(ctx context.Context, p core.Period, agg *core.Aggregate) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishPeriodReconciled(ctx, p, agg); err != nil {
		fields := applog.NewFields().
			WithOperation(applog.OpPublish).
			WithPeriod(p.Year, p.Month).
			WithError(err)
		r.log.ErrorContext(ctx, "Failed to publish period event", fields.Args()...)
	}
}
