// Package sheets mirrors monthly receipt totals into a spreadsheet with one
// tab per year and one row per month.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"receipts/internal/core"
)

// Header is the first row of every yearly tab.
var Header = []any{"Month", "Total", "Receipts", "Updated At"}

// MonthWriter writes or clears the row for one period.
type MonthWriter interface {
	// WriteMonth writes agg into the period's row, or clears the row when
	// agg is nil.
	WriteMonth(ctx context.Context, p core.Period, agg *core.Aggregate) error
}

// YearSheetName returns the tab name for year, e.g. "2024 Receipts".
func YearSheetName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "Receipts"
	}
	return fmt.Sprintf("%d %s", year, base)
}

// RowNumber is the 1-based sheet row for month; row 1 holds the header.
func RowNumber(month int) int {
	return month + 1
}

// Row renders agg as spreadsheet cells.
func Row(agg core.Aggregate) []any {
	return []any{
		time.Month(agg.Month).String(),
		agg.TotalAmount,
		agg.ReceiptCount,
		agg.UpdatedAtString(),
	}
}
