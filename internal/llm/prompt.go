package llm

import (
	"encoding/json"
	"strings"
)

// BuildSystemPrompt composes the system message with bucket definitions and
// strict-but-practical formatting rules.
func BuildSystemPrompt() string {
	parts := []string{
		"You are a prescription parser. Return ONLY JSON that matches the provided JSON Schema.",
		"From the OCR text of a medical prescription, extract medication names into 'medications', dose amounts with units (e.g. 500mg, 10ml) into 'dosages', how often to take into 'frequencies', and how long to take into 'durations'.",
		"Copy values from the text; do not invent medications that are not present.",
		"If intake instructions appear (e.g. 'with meals', 'before bed'), include them under 'instructions'.",
		"A bucket with no matches must be an empty array.",
		"Never output null. If an optional field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename hint, the rule-based findings, and the
// OCR text. Long OCR text is truncated so one bad scan can't blow the prompt.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	if filename := strings.TrimSpace(req.FilenameHint); filename != "" {
		b.WriteString("Filename: ")
		b.WriteString(filename)
		b.WriteString("\n")
	}

	if len(req.RuleFindings) > 0 {
		b.WriteString("Rule-based findings (refine these, fixing OCR artifacts):\n")
		if enc, err := json.Marshal(req.RuleFindings); err == nil {
			b.Write(enc)
			b.WriteString("\n")
		}
	}

	ocr := strings.TrimSpace(req.OCRText)
	b.WriteString("\nOCR text (first ~3k chars):\n")
	if len(ocr) > 3000 {
		b.WriteString(ocr[:3000])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(ocr)
	}
	return b.String()
}
