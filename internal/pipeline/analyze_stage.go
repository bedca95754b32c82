package pipeline

import (
	"context"
	"encoding/json"

	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/entity"
	"github.com/osoji/rxscan/internal/llm"
	"github.com/osoji/rxscan/internal/ocr"
)

// runAnalysis applies the rule-based extractor and, when an extractor is
// wired and text came back, asks the LLM to refine the buckets. LLM
// failure never fails the scan; the rule-based result stands.
func (p *Processor) runAnalysis(ctx context.Context, job *entity.ScanJob, res ocr.ExtractionResult, filename string) (*Outcome, error) {
	out := &Outcome{
		JobID:       job.ID,
		FileID:      job.FileID,
		OCR:         res,
		NeedsReview: res.Empty() || (res.Confidence > 0 && res.Confidence < float64(p.Cfg.ReviewThreshold)),
	}

	var analysisJSON []byte
	if !res.Empty() {
		out.Analysis = p.Analyzer.Analyze(res.Text)
		enc, err := json.Marshal(out.Analysis)
		if err != nil {
			_ = p.JobsRepo.Fail(ctx, job.ID, err.Error())
			return nil, common.NewAppError("ANALYZE_FAILED", "Could not analyze the prescription text", err)
		}
		analysisJSON = enc
	}

	var extractedJSON []byte
	if p.Extractor != nil && !res.Empty() {
		req := llm.ExtractRequest{
			OCRText:      res.Text,
			FilenameHint: filename,
			RuleFindings: map[string][]string{
				"medications": out.Analysis.Medications,
				"dosages":     out.Analysis.Dosages,
				"frequencies": out.Analysis.Frequencies,
				"durations":   out.Analysis.Durations,
			},
			OCRConfidence: float32(res.Confidence),
		}
		fields, raw, err := p.Extractor.ExtractFields(ctx, req)
		if err != nil {
			p.Logger.Warn("llm refine failed; keeping rule-based analysis", "job_id", job.ID, "err", err)
		} else {
			out.Fields = &fields
			extractedJSON = raw
		}
	}

	if err := p.JobsRepo.FinishAnalysis(ctx, job.ID, analysisJSON, extractedJSON); err != nil {
		return nil, common.NewAppError("ANALYZE_FAILED", "Could not analyze the prescription text", err)
	}
	return out, nil
}
