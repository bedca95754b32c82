package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScanJob represents one pass of a prescription image through the
// OCR and analysis stages, for data transfer between layers.
type ScanJob struct {
	ID            uuid.UUID       `json:"id"`
	FileID        uuid.UUID       `json:"file_id"`
	Format        string          `json:"format"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Status        string          `json:"status"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	OCRConfidence *float32        `json:"ocr_confidence,omitempty"`
	NeedsReview   bool            `json:"needs_review"`
	OCRText       *string         `json:"ocr_text,omitempty"`
	AnalysisJSON  json.RawMessage `json:"analysis_json,omitempty"`
	ExtractedJSON json.RawMessage `json:"extracted_json,omitempty"`
	ModelName     *string         `json:"model_name,omitempty"`
}
