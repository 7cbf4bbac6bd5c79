package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"receipts/internal/amqp"
	"receipts/internal/core"
	recmem "receipts/internal/recordstore/memory"
	sheetmem "receipts/internal/sheets/memory"
)

type failingSheet struct{}

func (failingSheet) WriteMonth(context.Context, core.Period, *core.Aggregate) error {
	return errors.New("quota exceeded")
}

func TestHandlePeriodReconciledUsesStoredRecord(t *testing.T) {
	ctx := context.Background()
	records := recmem.New()
	sheet := sheetmem.New()
	w := NewMirrorWorker(records, sheet, nil)

	p := core.Period{Year: 2024, Month: 2}
	records.Put(ctx, core.Aggregate{Year: 2024, Month: 2, TotalAmount: 15000, ReceiptCount: 2, UpdatedAt: time.Now()})

	// The message is stale; the stored record wins.
	msg := &amqp.PeriodReconciledMessage{Year: 2024, Month: 2, Present: true, TotalAmount: 40000, ReceiptCount: 3}
	if err := w.HandlePeriodReconciled(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	row, ok := sheet.Row(p)
	if !ok || row.TotalAmount != 15000 || row.ReceiptCount != 2 {
		t.Fatalf("unexpected mirrored row %+v %v", row, ok)
	}

	records.Delete(ctx, p)
	if err := w.HandlePeriodReconciled(ctx, msg); err != nil {
		t.Fatalf("handle after delete: %v", err)
	}
	if _, ok := sheet.Row(p); ok {
		t.Fatalf("row should be cleared once the record is gone")
	}
}

func TestHandlePeriodReconciledPropagatesSheetErrors(t *testing.T) {
	w := NewMirrorWorker(recmem.New(), failingSheet{}, nil)
	err := w.HandlePeriodReconciled(context.Background(), &amqp.PeriodReconciledMessage{Year: 2024, Month: 1})
	if err == nil {
		t.Fatalf("sheet errors must be returned so the message is requeued")
	}
}

type fakeConsumer struct {
	msgs []*amqp.PeriodReconciledMessage
}

func (f *fakeConsumer) ConsumeWithReconnect(ctx context.Context, handler amqp.Handler) error {
	for _, m := range f.msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun(t *testing.T) {
	records := recmem.New()
	sheet := sheetmem.New()
	records.Put(context.Background(), core.Aggregate{Year: 2024, Month: 7, TotalAmount: 5, ReceiptCount: 1, UpdatedAt: time.Now()})
	w := NewMirrorWorker(records, sheet, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, &fakeConsumer{msgs: []*amqp.PeriodReconciledMessage{{Year: 2024, Month: 7, Present: true}}})
	}()

	deadline := time.After(2 * time.Second)
	for sheet.Writes() == 0 {
		select {
		case <-deadline:
			t.Fatalf("worker did not process the message")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run should return nil on shutdown, got %v", err)
	}
}

func TestStartupSyncMirrorsWholeYears(t *testing.T) {
	ctx := context.Background()
	records := recmem.New()
	sheet := sheetmem.New()
	w := NewMirrorWorker(records, sheet, nil)

	records.Put(ctx, core.Aggregate{Year: 2023, Month: 12, TotalAmount: 7000, ReceiptCount: 1, UpdatedAt: time.Now()})
	records.Put(ctx, core.Aggregate{Year: 2024, Month: 1, TotalAmount: 9000, ReceiptCount: 2, UpdatedAt: time.Now()})

	if err := w.StartupSync(ctx, 2023, 2024); err != nil {
		t.Fatalf("startup sync: %v", err)
	}
	if sheet.Writes() != 24 {
		t.Fatalf("expected 24 month writes, got %d", sheet.Writes())
	}
	if row, ok := sheet.Row(core.Period{Year: 2023, Month: 12}); !ok || row.TotalAmount != 7000 {
		t.Fatalf("December 2023 not mirrored: %+v", row)
	}
	if row, ok := sheet.Row(core.Period{Year: 2024, Month: 1}); !ok || row.TotalAmount != 9000 {
		t.Fatalf("January 2024 not mirrored: %+v", row)
	}

	if err := NewMirrorWorker(records, failingSheet{}, nil).StartupSync(ctx, 2024); err == nil {
		t.Fatal("expected the first sheet error to be returned")
	}
}
