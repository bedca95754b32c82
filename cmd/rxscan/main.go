// rxscan processes a directory of prescription images in one pass: ingest,
// scan, analyze and export the results as an XLSX workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/osoji/rxscan/constants"
	"github.com/osoji/rxscan/internal/analysis"
	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/export"
	"github.com/osoji/rxscan/internal/ingest"
	"github.com/osoji/rxscan/internal/llm"
	"github.com/osoji/rxscan/internal/llm/openai"
	"github.com/osoji/rxscan/internal/ocr"
	"github.com/osoji/rxscan/internal/pipeline"
	"github.com/osoji/rxscan/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem   = flag.Bool("inmem", false, "use an in-memory SQLite database")
		dir     = flag.String("dir", "", "directory to process prescriptions from (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		fromStr = flag.String("from", "", "from date YYYY-MM-DD for the export window")
		toStr   = flag.String("to", "", "to date YYYY-MM-DD for the export window")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "scans.xlsx")
	}

	var from, to *time.Time
	if *fromStr != "" {
		parsed, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		from = &parsed
	}
	if *toStr != "" {
		parsed, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		to = &parsed
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()
	if *inmem {
		cfg.Database.DSN = ":memory:"
	}

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
		logger.Error("failed to build OCR engine", "error", err)
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
		logger.Warn("OPENAI_API_KEY not configured, llm refinement will be skipped")
	}

	proc := pipeline.NewProcessor(pipeline.Config{
		ReviewThreshold: float32(cfg.OCR.ReviewThreshold),
		ArtifactDir:     cfg.OCR.ArtifactDir,
	}, filesRepo, jobsRepo, engine, analysis.NewAnalyzer(), extractor, logger)

	ingestor := ingest.NewFSIngestor(filesRepo, logger)

	logger.Info("starting ingestion", "dir", *dir)
	results, stats, err := ingestor.IngestDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)

	processed := 0
	failures := 0
	for _, res := range results {
		if res.Err != "" {
			continue
		}
		job, err := jobsRepo.Start(ctx, res.FileID, constants.FormatForExt(res.FileExt), constants.ScanStatusQueued)
		if err != nil {
			logger.Error("failed to start scan job", "file_id", res.FileID, "error", err)
			failures++
			continue
		}
		logger.Info("processing file", "file_id", res.FileID, "job_id", job.ID, "path", res.SourcePath)
		if err := proc.ProcessJob(ctx, job.ID); err != nil {
			logger.Error("failed to process file", "file_id", res.FileID, "error", err)
			failures++
			continue
		}
		processed++
	}

	logger.Info("exporting to XLSX", "output", *out)
	exportService := export.NewService(jobsRepo, logger)
	if err := exportService.WriteScansXLSX(ctx, *out, from, to, ""); err != nil {
		logger.Error("failed to export scans", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"files_processed", processed,
		"failures", failures,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files matched: %d\n", stats.Matched)
	fmt.Printf("- Files processed: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}
