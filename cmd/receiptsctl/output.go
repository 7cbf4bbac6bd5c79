package main

import (
	"encoding/json"
	"fmt"
	"io"

	"receipts/internal/core"
	"receipts/internal/services"
)

type aggregateJSON struct {
	Year         int    `json:"year"`
	Month        int    `json:"month"`
	Present      bool   `json:"present"`
	TotalAmount  int64  `json:"total_amount"`
	ReceiptCount int    `json:"receipt_count"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

type receiptJSON struct {
	Key    string `json:"key"`
	Amount *int64 `json:"amount"`
}

type yearJSON struct {
	Year         int             `json:"year"`
	TotalAmount  int64           `json:"total_amount"`
	ReceiptCount int             `json:"receipt_count"`
	Months       []aggregateJSON `json:"months"`
}

type batchItemJSON struct {
	Filename string `json:"filename"`
	OK       bool   `json:"ok"`
	Amount   int64  `json:"amount,omitempty"`
	Key      string `json:"key,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type batchJSON struct {
	Items     []batchItemJSON `json:"items"`
	Aggregate aggregateJSON   `json:"aggregate"`
}

func toAggregateJSON(p core.Period, agg *core.Aggregate) aggregateJSON {
	out := aggregateJSON{Year: p.Year, Month: p.Month}
	if agg != nil {
		out.Present = true
		out.TotalAmount = agg.TotalAmount
		out.ReceiptCount = agg.ReceiptCount
		out.UpdatedAt = agg.UpdatedAtString()
	}
	return out
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeAggregate(w io.Writer, p core.Period, agg *core.Aggregate) error {
	if agg == nil {
		return writePlain(w, "%s: no total recorded\n", p)
	}
	return writePlain(w, "%s: total=%d receipts=%d updated_at=%s\n",
		p, agg.TotalAmount, agg.ReceiptCount, agg.UpdatedAtString())
}

func writeReceipts(w io.Writer, list []core.Receipt) error {
	for _, r := range list {
		amount := "unknown"
		if r.Known {
			amount = fmt.Sprintf("%d", r.Amount)
		}
		if err := writePlain(w, "%s\t%s\n", amount, r.Key); err != nil {
			return err
		}
	}
	return nil
}

func receiptsJSON(list []core.Receipt) []receiptJSON {
	out := make([]receiptJSON, 0, len(list))
	for _, r := range list {
		item := receiptJSON{Key: r.Key}
		if r.Known {
			amount := r.Amount
			item.Amount = &amount
		}
		out = append(out, item)
	}
	return out
}

func toYearJSON(sum *core.YearSummary) yearJSON {
	out := yearJSON{Year: sum.Year, TotalAmount: sum.TotalAmount, ReceiptCount: sum.ReceiptCount}
	for _, m := range sum.Months {
		out.Months = append(out.Months, toAggregateJSON(core.Period{Year: sum.Year, Month: m.Month}, m.Aggregate))
	}
	return out
}

func writeYear(w io.Writer, sum *core.YearSummary) error {
	for _, m := range sum.Months {
		if m.Aggregate == nil {
			if err := writePlain(w, "%04d-%02d\t-\t-\n", sum.Year, m.Month); err != nil {
				return err
			}
			continue
		}
		if err := writePlain(w, "%04d-%02d\t%d\t%d\n", sum.Year, m.Month, m.Aggregate.TotalAmount, m.Aggregate.ReceiptCount); err != nil {
			return err
		}
	}
	return writePlain(w, "total\t%d\t%d\n", sum.TotalAmount, sum.ReceiptCount)
}

func toBatchJSON(res *services.BatchResult) batchJSON {
	out := batchJSON{Aggregate: toAggregateJSON(res.Period, res.Aggregate)}
	for _, it := range res.Items {
		out.Items = append(out.Items, batchItemJSON{
			Filename: it.Filename,
			OK:       it.OK,
			Amount:   it.Amount,
			Key:      it.Key,
			Reason:   it.Reason,
		})
	}
	return out
}

func writeBatch(w io.Writer, res *services.BatchResult) error {
	for _, it := range res.Items {
		var err error
		if it.OK {
			err = writePlain(w, "ok\t%d\t%s\n", it.Amount, it.Filename)
		} else {
			err = writePlain(w, "failed\t%s\t%s\n", it.Reason, it.Filename)
		}
		if err != nil {
			return err
		}
	}
	return writeAggregate(w, res.Period, res.Aggregate)
}
