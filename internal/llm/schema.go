package llm

// BuildPrescriptionJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to OpenAI as a structured output constraint and
// also use it locally to validate.
func BuildPrescriptionJSONSchema() map[string]any {
	props := map[string]any{
		"medications":  stringListProp(),
		"dosages":      stringListProp(),
		"frequencies":  stringListProp(),
		"durations":    stringListProp(),
		"instructions": map[string]any{"type": "string"},
		"confidence":   map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}

	// The four buckets are REQUIRED so the model can't omit them; empty
	// arrays are the honest answer for a clean miss.
	required := []string{"medications", "dosages", "frequencies", "durations"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func stringListProp() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string", "minLength": 1},
	}
}
