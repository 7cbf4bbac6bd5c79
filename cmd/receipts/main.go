package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"receipts/internal/cli"
	apphttp "receipts/internal/http"
	applog "receipts/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, nil)

	if err := cfg.CheckOCR(); err != nil {
		logger.Warn("Receipt recognition disabled, uploads will fail", applog.FieldError, err)
	}

	svc, err := cli.BuildServices(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize services", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	if !svc.Backend.Persistent() {
		logger.Warn("Using memory backend, receipts are lost on restart")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Batches:    svc.Batches,
		Reconciler: svc.Reconciler,
		History:    svc.History,
		Exporter:   svc.Exporter,
		Ready:      svc.Backend.Ping,
	}, apphttp.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
	})

	// Uploads run OCR per image, so the write deadline covers a whole batch.
	srv.ReadTimeout = 2 * time.Minute
	srv.WriteTimeout = 15 * time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := svc.Close(); err != nil {
			logger.Error("Cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting receipts server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend,
		"events", svc.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
