package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"receipts/internal/blobstore"
	"receipts/internal/core"
	applog "receipts/internal/log"
	"receipts/internal/recordstore"
)

// yearFanOut bounds concurrent record reads in YearSummary.
const yearFanOut = 4

// History serves read-only views over receipts and aggregates.
type History struct {
	receipts   *ReceiptStore
	records    recordstore.Store
	presignTTL time.Duration
	imagePath  string
	log        *slog.Logger
}

// NewHistory builds a History. Receipt URLs are presigned for presignTTL when
// the blob store supports it, otherwise they point at imagePath.
func NewHistory(receipts *ReceiptStore, records recordstore.Store, presignTTL time.Duration, imagePath string, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	if imagePath == "" {
		imagePath = "/receipts/image"
	}
	return &History{
		receipts:   receipts,
		records:    records,
		presignTTL: presignTTL,
		imagePath:  imagePath,
		log:        logger.With(applog.FieldComponent, applog.ComponentReceipts),
	}
}

// GetAggregate returns nil when the period has no record.
func (h *History) GetAggregate(ctx context.Context, p core.Period) (*core.Aggregate, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	agg, err := h.records.Get(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("get aggregate %s: %w", p, err)
	}
	return agg, nil
}

// ListReceipts returns the period's receipts in key order. Receipts whose key
// carries no amount are included with Known set to false.
func (h *History) ListReceipts(ctx context.Context, p core.Period) ([]core.Receipt, error) {
	keys, err := h.receipts.ListReceiptKeys(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]core.Receipt, 0, len(keys))
	for _, k := range keys {
		amount, ok := core.ParseAmount(k)
		out = append(out, core.Receipt{Key: k, Amount: amount, Known: ok})
	}
	return out, nil
}

// ReceiptImage returns the stored bytes for key. Only receipt keys are served.
func (h *History) ReceiptImage(ctx context.Context, key string) ([]byte, error) {
	if !isReceiptKey(key) {
		return nil, blobstore.ErrNotFound
	}
	return h.receipts.GetReceipt(ctx, key)
}

// ReceiptURL returns a URL the browser can load the image from.
func (h *History) ReceiptURL(ctx context.Context, key string) string {
	if ps, ok := h.receipts.Blobs().(blobstore.Presigner); ok && h.presignTTL > 0 {
		u, err := ps.PresignGet(ctx, key, h.presignTTL)
		if err == nil {
			return u
		}
		h.log.WarnContext(ctx, "Failed to presign receipt URL",
			applog.FieldReceiptKey, key,
			applog.FieldError, err)
	}
	return h.imagePath + "?key=" + url.QueryEscape(key)
}

// YearSummary reads the twelve monthly records of year.
func (h *History) YearSummary(ctx context.Context, year int) (*core.YearSummary, error) {
	if err := (core.Period{Year: year, Month: 1}).Validate(); err != nil {
		return nil, err
	}
	months := make([]core.MonthSummary, 12)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(yearFanOut)
	for i := range months {
		p := core.Period{Year: year, Month: i + 1}
		g.Go(func() error {
			agg, err := h.records.Get(gctx, p)
			if err != nil {
				return fmt.Errorf("get aggregate %s: %w", p, err)
			}
			months[i] = core.MonthSummary{Month: p.Month, Aggregate: agg}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &core.YearSummary{Year: year, Months: months}
	for _, m := range months {
		if m.Aggregate != nil {
			sum.TotalAmount += m.Aggregate.TotalAmount
			sum.ReceiptCount += m.Aggregate.ReceiptCount
		}
	}
	return sum, nil
}

// isReceiptKey accepts clean keys below receipts/ only.
func isReceiptKey(key string) bool {
	return path.Clean(key) == key && strings.HasPrefix(key, "receipts/")
}
