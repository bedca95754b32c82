// Package pipeline coordinates the scan stages: preprocess, OCR,
// rule-based analysis, and the optional LLM refinement.
package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osoji/rxscan/constants"
	"github.com/osoji/rxscan/internal/analysis"
	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/entity"
	"github.com/osoji/rxscan/internal/imaging"
	"github.com/osoji/rxscan/internal/llm"
	"github.com/osoji/rxscan/internal/ocr"
	"github.com/osoji/rxscan/internal/repository"
)

// Config holds thresholds and behavior flags for the scan stages.
type Config struct {
	ReviewThreshold float32 // default 0.60
	ArtifactDir     string  // default "./tmp" if empty
}

type Processor struct {
	Logger    *slog.Logger
	Cfg       Config
	FilesRepo repository.FilesRepository
	JobsRepo  repository.ScanJobsRepository
	Engine    ocr.Engine
	Analyzer  *analysis.Analyzer

	// Extractor is nil when LLM refinement is disabled.
	Extractor llm.FieldExtractor
}

// Outcome is what one scan produced, shaped for the HTTP layer.
type Outcome struct {
	JobID       uuid.UUID
	FileID      uuid.UUID
	Deduped     bool
	OCR         ocr.ExtractionResult
	Analysis    analysis.Result
	Fields      *llm.PrescriptionFields
	NeedsReview bool
}

func NewProcessor(cfg Config, files repository.FilesRepository, jobs repository.ScanJobsRepository, engine ocr.Engine, analyzer *analysis.Analyzer, extractor llm.FieldExtractor, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = 0.60
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "./tmp"
	}
	return &Processor{
		Logger:    logger,
		Cfg:       cfg,
		FilesRepo: files,
		JobsRepo:  jobs,
		Engine:    engine,
		Analyzer:  analyzer,
		Extractor: extractor,
	}
}

// ProcessImage scans an already-decoded upload: it records the file and a
// RUNNING job, then runs the stages synchronously so the caller can wait
// on the result.
func (p *Processor) ProcessImage(ctx context.Context, img image.Image, format, srcName string, raw []byte) (*Outcome, error) {
	hash := sha256.Sum256(raw)
	ext := constants.NormalizeExt(filepath.Ext(srcName))
	if ext == "" {
		ext = strings.ToLower(format)
	}

	file, deduped, err := p.FilesRepo.UpsertByHash(ctx, srcName, filepath.Base(srcName), ext, len(raw), hash[:], time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}

	job, err := p.JobsRepo.Start(ctx, file.ID, strings.ToUpper(format), constants.ScanStatusRunning)
	if err != nil {
		return nil, err
	}

	out, err := p.run(ctx, job, img, file.Filename)
	if err != nil {
		return nil, err
	}
	out.FileID = file.ID
	out.Deduped = deduped
	return out, nil
}

// ProcessJob runs a previously queued job, loading the image from the
// recorded source path. This is the worker-pool entrypoint.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.JobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	file, err := p.FilesRepo.GetByID(ctx, job.FileID)
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}
	if err := p.JobsRepo.MarkRunning(ctx, job.ID); err != nil {
		return err
	}

	data, err := os.ReadFile(file.SourcePath)
	if err != nil {
		msg := fmt.Sprintf("read source: %v", err)
		_ = p.JobsRepo.Fail(ctx, job.ID, msg)
		return fmt.Errorf("%s: %w", msg, common.ErrInvalidInput)
	}
	img, _, err := imaging.Decode(data)
	if err != nil {
		_ = p.JobsRepo.Fail(ctx, job.ID, "Invalid image file")
		return err
	}

	_, err = p.run(ctx, job, img, file.Filename)
	return err
}

// run executes the stages against one decoded image, persisting progress
// on the job row as it goes.
func (p *Processor) run(ctx context.Context, job *entity.ScanJob, img image.Image, filename string) (*Outcome, error) {
	res, err := p.runOCR(ctx, job, img)
	if err != nil {
		p.Logger.Error("processor.ocr.failed", "job_id", job.ID, "err", err)
		return nil, err
	}
	p.Logger.Info("processor.ocr.ok",
		"job_id", job.ID,
		"method", res.Method,
		"lines", len(res.Lines),
		"confidence", res.Confidence,
	)

	out, err := p.runAnalysis(ctx, job, res, filename)
	if err != nil {
		p.Logger.Error("processor.analyze.failed", "job_id", job.ID, "err", err)
		return nil, err
	}
	p.Logger.Info("processor.analyze.ok", "job_id", job.ID, "needs_review", out.NeedsReview)
	return out, nil
}
