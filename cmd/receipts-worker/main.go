package main

import (
	"context"
	"os"
	"time"

	"receipts/internal/amqp"
	"receipts/internal/backend"
	"receipts/internal/cli"
	"receipts/internal/config"
	applog "receipts/internal/log"
	"receipts/internal/sheets"
	gsheet "receipts/internal/sheets/google"
	sheetmem "receipts/internal/sheets/memory"
	"receipts/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting receipts-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).Create(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	var sheet sheets.MonthWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewClient(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		sheet = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		sheet = sheetmem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", applog.FieldError, err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", applog.FieldError, err)
		}
	})

	mirror := worker.NewMirrorWorker(res.Records, sheet, logger)

	// Catch up on events missed while the worker was down.
	year := time.Now().Year()
	if err := mirror.StartupSync(ctx, year-1, year); err != nil {
		logger.Error("Startup sync incomplete", applog.FieldError, err)
	}

	if err := mirror.Run(ctx, amqpClient); err != nil {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
