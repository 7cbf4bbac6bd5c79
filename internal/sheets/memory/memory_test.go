package memory

import (
	"context"
	"testing"

	"receipts/internal/core"
)

func TestWriter(t *testing.T) {
	ctx := context.Background()
	w := New()
	p := core.Period{Year: 2024, Month: 5}

	if err := w.WriteMonth(ctx, p, &core.Aggregate{Year: 2024, Month: 5, TotalAmount: 10}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if row, ok := w.Row(p); !ok || row.TotalAmount != 10 {
		t.Fatalf("unexpected row %+v %v", row, ok)
	}
	if err := w.WriteMonth(ctx, p, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := w.Row(p); ok {
		t.Fatalf("row should be cleared")
	}
	if w.Writes() != 2 {
		t.Fatalf("expected 2 writes, got %d", w.Writes())
	}
	if err := w.WriteMonth(ctx, core.Period{Year: 2024, Month: 13}, nil); err == nil {
		t.Fatalf("expected invalid period error")
	}
}
