package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"receipts/internal/blobstore"
	"receipts/internal/cache"
	"receipts/internal/core"
	applog "receipts/internal/log"
)

// ContentTypeJPEG is recorded on every stored receipt.
const ContentTypeJPEG = "image/jpeg"

// ReceiptStore maps periods and amounts onto blob keys.
type ReceiptStore struct {
	blobs  blobstore.Store
	clock  *core.MonotonicClock
	images *cache.LRU[[]byte]
	log    *slog.Logger
}

func NewReceiptStore(blobs blobstore.Store, clock *core.MonotonicClock, logger *slog.Logger) *ReceiptStore {
	if clock == nil {
		clock = core.NewMonotonicClock(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptStore{
		blobs: blobs,
		clock: clock,
		log:   logger.With(applog.FieldComponent, applog.ComponentReceipts),
	}
}

// CacheImages keeps recently read receipt images in c. Keys are never
// rewritten, so only deletes invalidate an entry.
func (s *ReceiptStore) CacheImages(c *cache.LRU[[]byte]) {
	s.images = c
}

// Blobs exposes the underlying blob store.
func (s *ReceiptStore) Blobs() blobstore.Store {
	return s.blobs
}

// Now returns the next unique upload instant.
func (s *ReceiptStore) Now() time.Time {
	return s.clock.Now()
}

// StoreReceipt writes image under a freshly built key for period and amount.
func (s *ReceiptStore) StoreReceipt(ctx context.Context, image []byte, p core.Period, amount int64, instant time.Time) (string, error) {
	if len(image) == 0 {
		return "", core.ErrEmptyImage
	}
	key, err := core.NewReceiptKey(p, amount, instant)
	if err != nil {
		return "", err
	}
	if err := s.blobs.Put(ctx, key, image, ContentTypeJPEG); err != nil {
		return "", fmt.Errorf("store receipt: %w", err)
	}
	s.log.DebugContext(ctx, "Receipt stored",
		applog.FieldReceiptKey, key,
		applog.FieldAmount, amount,
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month)
	return key, nil
}

// ListReceiptKeys returns every key under the period prefix, sorted.
func (s *ReceiptStore) ListReceiptKeys(ctx context.Context, p core.Period) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	keys, err := s.blobs.List(ctx, p.Prefix())
	if err != nil {
		return nil, fmt.Errorf("list receipts %s: %w", p, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteReceipt reports false when the store refuses the delete; the error
// is logged, not returned.
func (s *ReceiptStore) DeleteReceipt(ctx context.Context, key string) bool {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.ErrorContext(ctx, "Failed to delete receipt",
			applog.FieldReceiptKey, key,
			applog.FieldError, err)
		return false
	}
	if s.images != nil {
		s.images.Delete(key)
	}
	s.log.DebugContext(ctx, "Receipt deleted", applog.FieldReceiptKey, key)
	return true
}

func (s *ReceiptStore) GetReceipt(ctx context.Context, key string) ([]byte, error) {
	if s.images != nil {
		if data, ok := s.images.Get(key); ok {
			return data, nil
		}
	}
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.images != nil {
		s.images.Set(key, data)
	}
	return data, nil
}
