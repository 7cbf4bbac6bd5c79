package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"receipts/internal/amqp"
	"receipts/internal/backend"
	"receipts/internal/cache"
	"receipts/internal/config"
	"receipts/internal/core"
	"receipts/internal/export"
	applog "receipts/internal/log"
	"receipts/internal/ocr"
	"receipts/internal/services"
)

const imageCacheTTL = 10 * time.Minute

// Services is the service graph shared by the web server and the admin CLI.
type Services struct {
	Backend    *backend.Result
	Events     *amqp.Client
	Receipts   *services.ReceiptStore
	Reconciler *services.Reconciler
	Batches    *services.Batches
	History    *services.History
	Exporter   *export.Service
}

// BuildServices creates the backend stores and the services over them.
// Events are published only when AMQP_URL is set; a broker that cannot be
// reached is logged and skipped. The OCR client is wired only when a key is
// configured, otherwise uploads fail with ocr.ErrNotConfigured.
func BuildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	s := &Services{Backend: res}

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		} else {
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
			s.Events = client
			events = client
		}
	}

	var extractor ocr.Extractor = ocr.Unconfigured
	if err := cfg.CheckOCR(); err == nil {
		extractor = ocr.NewClient(ocr.Config{
			APIKey:  cfg.OCRAPIKey,
			BaseURL: cfg.OCRBaseURL,
			Model:   cfg.OCRModel,
			Timeout: cfg.OCRTimeout,
		}, logger.With(applog.FieldComponent, applog.ComponentOCR))
	}

	s.Receipts = services.NewReceiptStore(res.Blobs, core.NewMonotonicClock(nil), logger)
	if cfg.ImageCacheSize > 0 {
		s.Receipts.CacheImages(cache.New[[]byte](cfg.ImageCacheSize, imageCacheTTL, nil))
	}
	s.Reconciler = services.NewReconciler(s.Receipts, res.Records, events, logger)
	s.Batches = services.NewBatches(s.Receipts, s.Reconciler, extractor, logger)
	s.History = services.NewHistory(s.Receipts, res.Records, cfg.PresignTTL, "", logger)
	s.Exporter = export.NewService(s.History, logger)
	return s, nil
}

// Close releases the broker connection and the backend.
func (s *Services) Close() error {
	var errs []error
	if s.Events != nil {
		if err := s.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
	}
	if err := s.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}
