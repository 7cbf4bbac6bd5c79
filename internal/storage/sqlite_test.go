package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"receipts/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "receipts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := core.Period{Year: 2024, Month: 2}

	got, err := s.Get(ctx, p)
	if err != nil || got != nil {
		t.Fatalf("expected absent, got %+v %v", got, err)
	}

	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := s.Put(ctx, core.Aggregate{Year: 2024, Month: 2, TotalAmount: 40000, ReceiptCount: 3, UpdatedAt: first}); err != nil {
		t.Fatalf("put: %v", err)
	}
	second := first.Add(time.Minute + 42*time.Microsecond)
	if err := s.Put(ctx, core.Aggregate{Year: 2024, Month: 2, TotalAmount: 15000, ReceiptCount: 2, UpdatedAt: second}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err = s.Get(ctx, p)
	if err != nil || got == nil {
		t.Fatalf("get: %+v %v", got, err)
	}
	if got.TotalAmount != 15000 || got.ReceiptCount != 2 || !got.UpdatedAt.Equal(second) {
		t.Fatalf("unexpected aggregate %+v", got)
	}

	var rows int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipt_totals`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected a single row per period, got %d", rows)
	}

	if err := s.Delete(ctx, p); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, p); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if got, _ := s.Get(ctx, p); got != nil {
		t.Fatalf("expected absent after delete")
	}
}

func TestSQLiteStoreRejectsZeroCount(t *testing.T) {
	s := newTestStore(t)
	err := s.Put(context.Background(), core.Aggregate{Year: 2024, Month: 2, UpdatedAt: time.Now()})
	if err == nil {
		t.Fatalf("expected check constraint to reject zero-count aggregate")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}
