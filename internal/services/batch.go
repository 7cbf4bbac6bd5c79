package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"receipts/internal/core"
	applog "receipts/internal/log"
	"receipts/internal/ocr"
)

// Upload is one image submitted in a batch.
type Upload struct {
	Filename string
	Data     []byte
}

// Reasons reported on failed batch items.
const (
	ReasonEmptyImage    = "empty image"
	ReasonNotRecognized = "no total recognized"
	ReasonOCRFailed     = "recognition failed"
	ReasonStoreFailed   = "could not store receipt"
	ReasonTotalTooLarge = "total too large"
)

// BatchItem is the outcome for one upload.
type BatchItem struct {
	Filename string
	Amount   int64
	Key      string
	OK       bool
	Reason   string
}

// BatchResult summarises a batch. Aggregate is nil when the period ended up
// with no counted receipts.
type BatchResult struct {
	Period       core.Period
	Items        []BatchItem
	Removed      int
	RemoveFailed int
	Aggregate    *core.Aggregate
}

// Stored returns the number of uploads that were saved.
func (r BatchResult) Stored() int {
	n := 0
	for _, it := range r.Items {
		if it.OK {
			n++
		}
	}
	return n
}

// Failed returns the uploads that were not saved.
func (r BatchResult) Failed() []BatchItem {
	var out []BatchItem
	for _, it := range r.Items {
		if !it.OK {
			out = append(out, it)
		}
	}
	return out
}

// RemoveResult is the outcome of deleting one receipt.
type RemoveResult struct {
	Key       string
	Deleted   bool
	Aggregate *core.Aggregate
}

// Batches runs the multi-step flows behind the dashboard forms.
type Batches struct {
	receipts   *ReceiptStore
	reconciler *Reconciler
	ocr        ocr.Extractor
	log        *slog.Logger
}

func NewBatches(receipts *ReceiptStore, reconciler *Reconciler, extractor ocr.Extractor, logger *slog.Logger) *Batches {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batches{
		receipts:   receipts,
		reconciler: reconciler,
		ocr:        extractor,
		log:        logger.With(applog.FieldComponent, applog.ComponentReceipts),
	}
}

// ReplacePeriod discards every receipt and the aggregate of the period, then
// stores the recognized uploads and writes the aggregate from their running
// sum. When an old receipt could not be deleted the aggregate is rebuilt from
// a fresh listing instead, so leftovers are still counted.
func (b *Batches) ReplacePeriod(ctx context.Context, p core.Period, uploads []Upload) (*BatchResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res := &BatchResult{Period: p}

	keys, err := b.receipts.ListReceiptKeys(ctx, p)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if b.receipts.DeleteReceipt(ctx, key) {
			res.Removed++
		} else {
			res.RemoveFailed++
		}
	}
	if err := b.reconciler.deleteAggregate(ctx, p); err != nil {
		return nil, err
	}

	total, count := b.storeAll(ctx, p, uploads, res)

	if res.RemoveFailed > 0 {
		b.log.WarnContext(ctx, "Some receipts survived the replace, reconciling from listing",
			applog.FieldYear, p.Year,
			applog.FieldMonth, p.Month,
			"remove_failed", res.RemoveFailed)
		res.Aggregate, err = b.reconciler.ReconcileAndPersist(ctx, p)
	} else {
		res.Aggregate, err = b.reconciler.persist(ctx, p, total, count)
	}
	if err != nil {
		return res, err
	}

	b.log.InfoContext(ctx, "Period replaced",
		applog.FieldOperation, applog.OpReplace,
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		"removed", res.Removed,
		"stored", count,
		"failed", len(uploads)-count)
	return res, nil
}

// AddReceipts stores the recognized uploads next to the existing receipts and
// reconciles the period.
func (b *Batches) AddReceipts(ctx context.Context, p core.Period, uploads []Upload) (*BatchResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res := &BatchResult{Period: p}
	_, count := b.storeAll(ctx, p, uploads, res)

	agg, err := b.reconciler.ReconcileAndPersist(ctx, p)
	if err != nil {
		return res, err
	}
	res.Aggregate = agg

	b.log.InfoContext(ctx, "Receipts added",
		applog.FieldOperation, applog.OpAdd,
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		"stored", count,
		"failed", len(uploads)-count)
	return res, nil
}

// RemoveReceipt deletes one receipt of the period and reconciles. The
// period is reconciled even when the delete fails.
func (b *Batches) RemoveReceipt(ctx context.Context, p core.Period, key string) (*RemoveResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !core.KeyInPeriod(key, p) {
		return nil, fmt.Errorf("%w: %s not under %s", core.ErrKeyOutsidePeriod, key, p.Prefix())
	}
	res := &RemoveResult{Key: key}
	res.Deleted = b.receipts.DeleteReceipt(ctx, key)

	agg, err := b.reconciler.ReconcileAndPersist(ctx, p)
	if err != nil {
		return res, err
	}
	res.Aggregate = agg
	return res, nil
}

// storeAll runs OCR on each upload and stores those with a positive total.
// It appends one item per upload to res and returns the running sum and
// count of stored receipts.
func (b *Batches) storeAll(ctx context.Context, p core.Period, uploads []Upload, res *BatchResult) (int64, int) {
	var (
		total int64
		count int
	)
	for _, up := range uploads {
		item := b.storeOne(ctx, p, up, total)
		if item.OK {
			total += item.Amount
			count++
		}
		res.Items = append(res.Items, item)
	}
	return total, count
}

// storeOne refuses an upload whose amount would push total past int64.
func (b *Batches) storeOne(ctx context.Context, p core.Period, up Upload, total int64) BatchItem {
	item := BatchItem{Filename: up.Filename}
	if len(up.Data) == 0 {
		item.Reason = ReasonEmptyImage
		return item
	}

	amount, err := b.ocr.ExtractTotal(ctx, up.Data)
	if err != nil {
		b.log.WarnContext(ctx, "Receipt recognition failed",
			applog.FieldFilename, up.Filename,
			applog.FieldError, err)
		item.Reason = ReasonOCRFailed
		return item
	}
	if amount <= 0 {
		item.Reason = ReasonNotRecognized
		return item
	}
	item.Amount = amount
	if _, ok := core.AddAmount(total, amount); !ok {
		b.log.WarnContext(ctx, "Receipt total overflows the batch sum",
			applog.FieldFilename, up.Filename,
			applog.FieldAmount, amount)
		item.Reason = ReasonTotalTooLarge
		return item
	}

	key, err := b.receipts.StoreReceipt(ctx, up.Data, p, amount, b.receipts.Now())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			b.log.WarnContext(ctx, "Receipt store canceled", applog.FieldFilename, up.Filename)
		} else {
			b.log.ErrorContext(ctx, "Failed to store receipt",
				applog.FieldFilename, up.Filename,
				applog.FieldError, err)
		}
		item.Reason = ReasonStoreFailed
		return item
	}
	item.Key = key
	item.OK = true
	return item
}
