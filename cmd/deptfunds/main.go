package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"deptfunds/internal/amqp"
	"deptfunds/internal/auth"
	"deptfunds/internal/blobstore"
	"deptfunds/internal/cli"
	"deptfunds/internal/config"
	apphttp "deptfunds/internal/http"
	applog "deptfunds/internal/log"
	"deptfunds/internal/pdfmerge"
	"deptfunds/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	blobs, err := blobstore.NewFS(cfg.UploadDir)
	if err != nil {
		logger.Error("Failed to open upload directory", "error", err, "path", cfg.UploadDir)
		os.Exit(1)
	}

	tokens, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiration)
	if err != nil {
		logger.Error("Failed to initialize token issuer", "error", err)
		os.Exit(1)
	}

	// Ledger events are optional on the API side; the mirror catches up from
	// the database when the broker is unavailable.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		events = client
		logger.Info("Publishing ledger events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Ledger events disabled - no AMQP_URL provided")
	}

	loc := cfg.Location()
	svc := apphttp.Services{
		Departments:  services.NewDepartmentService(repo),
		Allocations:  services.NewAllocationService(repo, events),
		Submissions:  services.NewSubmissionService(repo, blobs, pdfmerge.New(), events, loc),
		Verification: services.NewVerificationService(repo, events),
		Reports:      services.NewReportService(repo, loc),
	}

	srv := apphttp.NewServer(apphttp.Options{
		Port:               cfg.Port,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxUploadBytes:     cfg.MaxUploadBytes(),
		Location:           loc,
	}, tokens, repo, svc, logger)

	reconciler := services.NewReconciler(repo, services.ReconcilerConfig{Interval: cfg.ReconcileInterval})

	ctx := cli.GracefulShutdown(logger)

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconciler", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting deptfunds server", "port", cfg.Port, "timezone", cfg.Timezone)
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := reconciler.Stop(shutdownCtx); err != nil {
			logger.Warn("Reconciler stop error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
