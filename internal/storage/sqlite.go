// Package storage keeps monthly aggregates in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"receipts/internal/core"
	applog "receipts/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping is used by readiness checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Put(ctx context.Context, agg core.Aggregate) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO receipt_totals (year, month, total_amount, receipt_count, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (year, month) DO UPDATE SET
    total_amount = excluded.total_amount,
    receipt_count = excluded.receipt_count,
    updated_at = excluded.updated_at`,
		agg.Year, agg.Month, agg.TotalAmount, agg.ReceiptCount, agg.UpdatedAtString())
	if err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", agg.Period(), err)
	}
	slog.DebugContext(ctx, "Aggregate saved to SQLite",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldYear, agg.Year,
		applog.FieldMonth, agg.Month,
		applog.FieldTotalAmount, agg.TotalAmount,
		applog.FieldReceiptCount, agg.ReceiptCount)
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, p core.Period) (*core.Aggregate, error) {
	var (
		agg     core.Aggregate
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT year, month, total_amount, receipt_count, updated_at
FROM receipt_totals WHERE year = ? AND month = ?`, p.Year, p.Month).
		Scan(&agg.Year, &agg.Month, &agg.TotalAmount, &agg.ReceiptCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregate %s: %w", p, err)
	}
	agg.UpdatedAt, err = core.ParseUpdatedAt(updated)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, p core.Period) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM receipt_totals WHERE year = ? AND month = ?`, p.Year, p.Month); err != nil {
		return fmt.Errorf("delete aggregate %s: %w", p, err)
	}
	return nil
}
