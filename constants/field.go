package constants

import (
	"strings"
)

// Field names one of the four prescription element buckets produced by analysis.
type Field string

const (
	FieldMedications Field = "medications"
	FieldDosages     Field = "dosages"
	FieldFrequencies Field = "frequencies"
	FieldDurations   Field = "durations"
)

var allFields = []Field{
	FieldMedications,
	FieldDosages,
	FieldFrequencies,
	FieldDurations,
}

func FieldNames() []string {
	result := make([]string, len(allFields))
	for i, f := range allFields {
		result[i] = string(f)
	}
	return result
}

// CanonicalizeField resolves user-facing spellings (query params, CLI flags)
// to a Field. Returns false when the input matches nothing.
func CanonicalizeField(input string) (Field, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]Field{
		"meds":       FieldMedications,
		"medication": FieldMedications,
		"medicine":   FieldMedications,
		"drug":       FieldMedications,
		"drugs":      FieldMedications,
		"dose":       FieldDosages,
		"doses":      FieldDosages,
		"dosage":     FieldDosages,
		"frequency":  FieldFrequencies,
		"freq":       FieldFrequencies,
		"duration":   FieldDurations,
	}

	if f, ok := synonyms[normalized]; ok {
		return f, true
	}

	for _, f := range allFields {
		if normalized == string(f) {
			return f, true
		}
	}

	return "", false
}
