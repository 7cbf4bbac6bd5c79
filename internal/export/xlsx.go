// Package export renders yearly receipt totals as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"receipts/internal/core"
	"receipts/internal/services"
)

const (
	summarySheet = "Summary"
	detailSheet  = "Receipts"
)

type Service struct {
	history *services.History
	logger  *slog.Logger
}

func NewService(history *services.History, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{history: history, logger: logger}
}

// YearXLSX builds a workbook with a per-month summary sheet and a sheet
// listing every receipt of the year.
func (s *Service) YearXLSX(ctx context.Context, year int) ([]byte, error) {
	start := time.Now()
	sum, err := s.history.YearSummary(ctx, year)
	if err != nil {
		return nil, err
	}

	var receipts []monthReceipt
	for m := 1; m <= 12; m++ {
		list, err := s.history.ListReceipts(ctx, core.Period{Year: year, Month: m})
		if err != nil {
			return nil, err
		}
		for _, r := range list {
			receipts = append(receipts, monthReceipt{month: m, receipt: r})
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(detailSheet); err != nil {
		return nil, err
	}

	writeRow(f, summarySheet, 1, "Month", "Total", "Receipts", "Updated At")
	for i, m := range sum.Months {
		row := i + 2
		if m.Aggregate == nil {
			writeRow(f, summarySheet, row, time.Month(m.Month).String(), 0, 0, "")
			continue
		}
		writeRow(f, summarySheet, row,
			time.Month(m.Month).String(),
			m.Aggregate.TotalAmount,
			m.Aggregate.ReceiptCount,
			m.Aggregate.UpdatedAtString())
	}
	writeRow(f, summarySheet, 14, "Total", sum.TotalAmount, sum.ReceiptCount, "")
	_ = f.SetColWidth(summarySheet, "A", "A", 14)
	_ = f.SetColWidth(summarySheet, "B", "C", 12)
	_ = f.SetColWidth(summarySheet, "D", "D", 30)

	writeRow(f, detailSheet, 1, "Month", "Amount", "Key")
	for i, mr := range receipts {
		var amount any = "unknown"
		if mr.receipt.Known {
			amount = mr.receipt.Amount
		}
		writeRow(f, detailSheet, i+2, time.Month(mr.month).String(), amount, mr.receipt.Key)
	}
	_ = f.SetColWidth(detailSheet, "A", "B", 14)
	_ = f.SetColWidth(detailSheet, "C", "C", 70)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.InfoContext(ctx, "export.xlsx.ok",
		"year", year,
		"receipts", len(receipts),
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

type monthReceipt struct {
	month   int
	receipt core.Receipt
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
