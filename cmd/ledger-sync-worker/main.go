package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"deptfunds/internal/amqp"
	"deptfunds/internal/cli"
	"deptfunds/internal/config"
	applog "deptfunds/internal/log"
	"deptfunds/internal/sheets"
	gsheet "deptfunds/internal/sheets/google"
	mem "deptfunds/internal/sheets/memory"
	"deptfunds/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting ledger-sync-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var writer sheets.LedgerWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Mirroring ledger to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		// Without a spreadsheet the journal is kept in memory, which still
		// drains the queue and exercises the pipeline in development.
		writer = mem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, using in-memory ledger")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()
	amqpClient.SetPrefetch(cfg.SyncBatchSize)

	syncWorker := worker.NewLedgerSyncWorker(repo, writer, cfg.SyncBatchSize)
	ctx := cli.GracefulShutdown(logger)

	// Catch up on anything committed while the worker was down.
	logger.Info("Performing startup sync check...")
	if n, err := syncWorker.ProcessPending(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	} else {
		logger.Info("Startup sync check complete", "mirrored", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeLedgerEvents(gctx, syncWorker.HandleLedgerEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n, err := syncWorker.ProcessPending(gctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				} else if n > 0 {
					logger.Info("Periodic sync mirrored missed rows", "mirrored", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
