// rxscand is the prescription scanning daemon: HTTP upload API, scan
// history, XLSX export, optional hot-folder ingestion and an optional gRPC
// health listener.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/osoji/rxscan/internal/analysis"
	"github.com/osoji/rxscan/internal/async"
	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/export"
	"github.com/osoji/rxscan/internal/ingest"
	"github.com/osoji/rxscan/internal/llm"
	"github.com/osoji/rxscan/internal/llm/openai"
	"github.com/osoji/rxscan/internal/ocr"
	"github.com/osoji/rxscan/internal/pipeline"
	"github.com/osoji/rxscan/internal/repository"
	"github.com/osoji/rxscan/internal/server"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("close database", "error", cerr)
		}
	}()
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	filesRepo := repository.NewFilesRepository(db, logger)
	jobsRepo := repository.NewScanJobsRepository(db, logger)

	engine, err := ocr.NewEngine(ocr.Config{
		Engine:         cfg.OCR.Engine,
		Tesseract:      cfg.OCR.TesseractPath,
		Language:       cfg.OCR.Language,
		TessdataDir:    cfg.OCR.TessdataDir,
		DPI:            cfg.OCR.DPI,
		PSM:            cfg.OCR.PSM,
		OEM:            cfg.OCR.OEM,
		LineConfidence: cfg.OCR.LineConfidence,
	}, logger)
	if err != nil {
		logger.Error("failed to build OCR engine", "engine", cfg.OCR.Engine, "error", err)
		os.Exit(1)
	}

	var extractor llm.FieldExtractor
	if cfg.LLM.APIKey != "" {
		extractor = openai.NewClient(openai.Config{
			Model:           cfg.LLM.Model,
			APIKey:          cfg.LLM.APIKey,
			Temperature:     cfg.LLM.Temperature,
			Timeout:         cfg.LLM.Timeout,
			LenientOptional: true,
		}, logger)
		logger.Info("llm refinement enabled", "model", cfg.LLM.Model)
	} else {
		logger.Warn("OPENAI_API_KEY not configured, llm refinement disabled")
	}

	proc := pipeline.NewProcessor(pipeline.Config{
		ReviewThreshold: float32(cfg.OCR.ReviewThreshold),
		ArtifactDir:     cfg.OCR.ArtifactDir,
	}, filesRepo, jobsRepo, engine, analysis.NewAnalyzer(), extractor, logger)

	queue := async.NewScanQueue(proc, logger,
		async.WithWorkers(4),
		async.WithQueueSize(256),
		async.WithProcessTimeout(3*time.Minute),
	)

	if cfg.Ingest.WatchDir != "" {
		watchSvc := ingest.NewService(ingest.NewFSIngestor(filesRepo, logger), jobsRepo, queue, logger)
		go func() {
			err := watchSvc.Watch(ctx, ingest.WatchConfig{
				Roots:            []string{cfg.Ingest.WatchDir},
				Debounce:         cfg.Ingest.Debounce,
				InitialScan:      cfg.Ingest.InitialScan,
				RescanDuplicates: cfg.Ingest.RescanDuplicates,
				Logger:           logger,
			})
			if err != nil {
				logger.Error("hot-folder watcher stopped", "dir", cfg.Ingest.WatchDir, "error", err)
			}
		}()
	}

	exporter := export.NewService(jobsRepo, logger)
	srv := server.NewServer(cfg.Server, proc, jobsRepo, exporter, db, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		addr := cfg.Server.GRPCAddr
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("failed to listen for grpc health", "addr", addr, "error", err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		logger.Info("grpc health listening", "addr", addr)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc serve error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
