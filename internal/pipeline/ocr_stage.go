package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/entity"
	"github.com/osoji/rxscan/internal/imaging"
	"github.com/osoji/rxscan/internal/ocr"
)

// runOCR preprocesses the image, hands the artifact to the engine, and
// persists the OCR result (mark OCR_OK). A scan that yields no text is
// still OCR_OK; it is flagged for review instead of failed.
func (p *Processor) runOCR(ctx context.Context, job *entity.ScanJob, img image.Image) (ocr.ExtractionResult, error) {
	prepped := imaging.Preprocess(img)

	if err := os.MkdirAll(p.Cfg.ArtifactDir, 0o755); err != nil {
		_ = p.JobsRepo.Fail(ctx, job.ID, err.Error())
		return ocr.ExtractionResult{}, fmt.Errorf("artifact dir: %w", err)
	}
	artifact := filepath.Join(p.Cfg.ArtifactDir, job.ID.String()+".png")
	if err := imaging.SavePNG(artifact, prepped); err != nil {
		_ = p.JobsRepo.Fail(ctx, job.ID, err.Error())
		return ocr.ExtractionResult{}, fmt.Errorf("write artifact: %w", err)
	}

	res, err := p.Engine.Recognize(ctx, artifact)
	if err != nil {
		_ = p.JobsRepo.Fail(ctx, job.ID, err.Error())
		return res, common.NewAppError("OCR_FAILED", "Error processing image", err)
	}

	needsReview := res.Empty() || (res.Confidence > 0 && res.Confidence < float64(p.Cfg.ReviewThreshold))
	if needsReview && !res.Empty() {
		p.Logger.Warn("ocr confidence low; needs review", "job_id", job.ID, "confidence", res.Confidence)
	}

	if err := p.JobsRepo.FinishOCR(ctx, job.ID, res.Text, float32(res.Confidence), needsReview, res.Method); err != nil {
		return res, err
	}
	return res, nil
}
