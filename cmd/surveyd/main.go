// Command surveyd serves the extraction pipeline over gRPC, runs queued
// documents on a worker pool and optionally watches folders for new scans.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/survey-extractor/internal/async"
	"github.com/joseph-ayodele/survey-extractor/internal/bootstrap"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/ingest"
	"github.com/joseph-ayodele/survey-extractor/internal/observe"
	"github.com/joseph-ayodele/survey-extractor/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("SURVEY_CONFIG"), "config file; environment variables override it")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := bootstrap.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if observe.EnableTelemetry {
		shutdown, err := observe.Setup(ctx, "surveyd")
		if err != nil {
			logger.Error("failed to set up telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("telemetry shutdown", "error", err)
			}
		}()
		logger = slog.Default()
	}

	ledger, err := bootstrap.OpenLedger(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open run ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	processor, err := bootstrap.NewProcessor(cfg, ledger, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Server.QueueWorkers),
		async.WithQueueSize(cfg.Server.QueueSize),
		async.WithProcessTimeout(cfg.Server.JobTimeout),
	)

	opts := []server.Option{
		server.WithQueue(queue),
		server.WithMaxDocumentBytes(cfg.Server.MaxDocumentBytes),
	}
	if ledger.Runs != nil {
		opts = append(opts, server.WithLedger(ledger.Runs))
	}
	extraction := server.NewExtractionService(processor, logger, opts...)
	grpcServer, healthServer := server.NewGRPCServer(extraction, logger)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	logger.Info("surveyd listening", "addr", addr, "workers", cfg.Server.QueueWorkers, "ledger", ledger.DB != nil)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	if len(cfg.Server.WatchDirs) > 0 {
		watcher := ingest.NewService(extraction, logger)
		go func() {
			err := watcher.Watch(ctx, ingest.WatchConfig{
				Roots:       cfg.Server.WatchDirs,
				InitialScan: cfg.Server.WatchInitialScan,
				SkipHidden:  true,
				Debounce:    cfg.Server.WatchDebounce,
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("folder watch stopped", "dirs", cfg.Server.WatchDirs, "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("surveyd shutting down")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(drainCtx)
	grpcServer.GracefulStop()
}
