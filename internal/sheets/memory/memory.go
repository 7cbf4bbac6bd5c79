// Package memory is an in-process sheets.MonthWriter. The worker falls back
// to it when no spreadsheet is configured.
package memory

import (
	"context"
	"sync"

	"receipts/internal/core"
	"receipts/internal/sheets"
)

var _ sheets.MonthWriter = (*Writer)(nil)

type Writer struct {
	mu     sync.Mutex
	rows   map[core.Period]core.Aggregate
	writes int
}

func New() *Writer {
	return &Writer{rows: make(map[core.Period]core.Aggregate)}
}

func (w *Writer) WriteMonth(_ context.Context, p core.Period, agg *core.Aggregate) error {
	if err := p.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if agg == nil {
		delete(w.rows, p)
		return nil
	}
	w.rows[p] = *agg
	return nil
}

// Row returns the mirrored aggregate for p.
func (w *Writer) Row(p core.Period) (core.Aggregate, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	agg, ok := w.rows[p]
	return agg, ok
}

// Writes counts WriteMonth calls.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
