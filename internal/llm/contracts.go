package llm

import "context"

// PrescriptionFields is the normalized shape we want from the LLM.
type PrescriptionFields struct {
	Medications     []string `json:"medications"`
	Dosages         []string `json:"dosages"`
	Frequencies     []string `json:"frequencies"`
	Durations       []string `json:"durations"`
	Instructions    string   `json:"instructions,omitempty"` // e.g. "with meals"
	ModelConfidence float32  `json:"confidence,omitempty"`   // optional (0..1)
}

type ExtractRequest struct {
	OCRText      string
	FilenameHint string

	// RuleFindings carries the rule-based buckets so the model refines
	// rather than invents.
	RuleFindings map[string][]string

	OCRConfidence float32
}

// FieldExtractor is the interface the pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (PrescriptionFields, []byte /*rawJSON*/, error)
}
