// rescan re-runs the scan pipeline for one already-ingested prescription
// file, identified by its UUID. Useful after changing OCR settings or when
// a scan needs a fresh pass with LLM refinement enabled.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/osoji/rxscan/constants"
	"github.com/osoji/rxscan/internal/analysis"
	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/llm"
	"github.com/osoji/rxscan/internal/llm/openai"
	"github.com/osoji/rxscan/internal/ocr"
	"github.com/osoji/rxscan/internal/pipeline"
	"github.com/osoji/rxscan/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "rescan <file-id-uuid>")
		os.Exit(2)
	}
	fileID, err := uuid.Parse(os.Args[1])
	if err != nil {
		logger.Error("invalid file id (must be UUID)", "arg", os.Args[1], "error", err)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("close db", "error", cerr)
		}
	}()

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
		logger.Error("build OCR engine", "error", err)
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
	}

	proc := pipeline.NewProcessor(pipeline.Config{
		ReviewThreshold: float32(cfg.OCR.ReviewThreshold),
		ArtifactDir:     cfg.OCR.ArtifactDir,
	}, filesRepo, jobsRepo, engine, analysis.NewAnalyzer(), extractor, logger)

	file, err := filesRepo.GetByID(ctx, fileID)
	if err != nil {
		logger.Error("load file", "file_id", fileID, "error", err)
		os.Exit(1)
	}

	job, err := jobsRepo.Start(ctx, file.ID, constants.FormatForExt(file.FileExt), constants.ScanStatusQueued)
	if err != nil {
		logger.Error("start scan job", "file_id", fileID, "error", err)
		os.Exit(1)
	}

	start := time.Now()
	err = proc.ProcessJob(ctx, job.ID)
	dur := time.Since(start)

	if err != nil {
		logger.Error("rescan failed",
			"job_id", job.ID, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	done, err := jobsRepo.GetByID(ctx, job.ID)
	if err != nil {
		logger.Error("load finished job", "job_id", job.ID, "error", err)
		os.Exit(1)
	}

	attrs := []any{
		"job_id", done.ID,
		"status", done.Status,
		"needs_review", done.NeedsReview,
		"duration_ms", dur.Milliseconds(),
	}
	if done.OCRConfidence != nil {
		attrs = append(attrs, "confidence", *done.OCRConfidence)
	}
	if done.OCRText != nil {
		attrs = append(attrs, "bytes", len(*done.OCRText))
	}
	logger.Info("rescan OK", attrs...)
}
