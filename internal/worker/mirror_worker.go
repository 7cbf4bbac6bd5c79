// Package worker mirrors reconciled period totals into the spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"receipts/internal/amqp"
	applog "receipts/internal/log"
	"receipts/internal/recordstore"
	"receipts/internal/sheets"
)

// MirrorWorker copies the current aggregate of a period into the sheet
// whenever a period event arrives.
type MirrorWorker struct {
	records recordstore.Store
	sheet   sheets.MonthWriter
	log     *slog.Logger
}

func NewMirrorWorker(records recordstore.Store, sheet sheets.MonthWriter, logger *slog.Logger) *MirrorWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirrorWorker{
		records: records,
		sheet:   sheet,
		log:     logger.With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// HandlePeriodReconciled re-reads the record store rather than trusting the
// message, so late or reordered events still converge on the stored state.
func (w *MirrorWorker) HandlePeriodReconciled(ctx context.Context, msg *amqp.PeriodReconciledMessage) error {
	p := msg.Period()
	agg, err := w.records.Get(ctx, p)
	if err != nil {
		return fmt.Errorf("read aggregate %s: %w", p, err)
	}
	if agg == nil && msg.Present {
		w.log.WarnContext(ctx, "Event reports a record that is no longer stored",
			applog.FieldYear, p.Year,
			applog.FieldMonth, p.Month)
	}
	if err := w.sheet.WriteMonth(ctx, p, agg); err != nil {
		return fmt.Errorf("mirror %s: %w", p, err)
	}
	w.log.InfoContext(ctx, "Period mirrored",
		applog.FieldOperation, applog.OpMirror,
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		"present", agg != nil)
	return nil
}

// StartupSync mirrors every month of the given years from the record store,
// catching up on events published while the worker was down. Errors are
// logged per month and the first one is returned after all months ran.
func (w *MirrorWorker) StartupSync(ctx context.Context, years ...int) error {
	var first error
	for _, year := range years {
		for m := 1; m <= 12; m++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msg := &amqp.PeriodReconciledMessage{Year: year, Month: m}
			if err := w.HandlePeriodReconciled(ctx, msg); err != nil {
				w.log.ErrorContext(ctx, "Startup sync failed",
					applog.FieldYear, year,
					applog.FieldMonth, m,
					applog.FieldError, err)
				if first == nil {
					first = err
				}
			}
		}
	}
	return first
}

// Consumer is the subset of amqp.Client the worker runs on.
type Consumer interface {
	ConsumeWithReconnect(ctx context.Context, handler amqp.Handler) error
}

// Run consumes events until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, consumer Consumer) error {
	w.log.InfoContext(ctx, "Mirror worker started")
	err := consumer.ConsumeWithReconnect(ctx, w.HandlePeriodReconciled)
	if ctx.Err() != nil {
		w.log.InfoContext(ctx, "Mirror worker stopped")
		return nil
	}
	return err
}
