package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/osoji/rxscan/constants"
)

var listFields = constants.FieldNames()

// SanitizeFields repairs model output that is close to the schema but not
// conforming, so the overall document can still validate:
//   - keys that are bucket synonyms (meds, dose, freq) fold into the bucket
//   - missing/null buckets become empty arrays
//   - a bare string bucket is wrapped into a one-element array
//   - non-string or blank list items are removed
//   - a numeric-string confidence is parsed; out-of-range values clamp
//   - unknown keys are removed (additionalProperties is false)
func SanitizeFields(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var dropped []string

	// Resolve synonym keys first so their values go through bucket repair.
	renames := map[string]string{}
	for k := range m {
		if f, ok := constants.CanonicalizeField(k); ok && string(f) != k {
			renames[k] = string(f)
		}
	}
	for from, to := range renames {
		if _, exists := m[to]; !exists {
			m[to] = m[from]
		}
		delete(m, from)
		dropped = append(dropped, from+"(renamed "+to+")")
	}

	for _, k := range listFields {
		v, ok := m[k]
		if !ok || v == nil {
			m[k] = []any{}
			dropped = append(dropped, k+"(missing)")
			continue
		}
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				m[k] = []any{}
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = []any{s}
				dropped = append(dropped, k+"(wrapped)")
			}
		case []any:
			clean := make([]any, 0, len(t))
			for _, item := range t {
				s, ok := item.(string)
				if !ok {
					dropped = append(dropped, k+"(item type)")
					continue
				}
				s = strings.TrimSpace(s)
				if s == "" {
					dropped = append(dropped, k+"(item empty)")
					continue
				}
				clean = append(clean, s)
			}
			m[k] = clean
		default:
			m[k] = []any{}
			dropped = append(dropped, k+"(type)")
		}
	}

	if v, ok := m["instructions"]; ok {
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				delete(m, "instructions")
				dropped = append(dropped, "instructions(empty)")
			} else {
				m["instructions"] = s
			}
		default:
			delete(m, "instructions")
			dropped = append(dropped, "instructions(type)")
		}
	}

	if v, ok := m["confidence"]; ok {
		switch t := v.(type) {
		case float64:
			m["confidence"] = clampUnit(t)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				m["confidence"] = clampUnit(f)
				dropped = append(dropped, "confidence(string)")
			} else {
				delete(m, "confidence")
				dropped = append(dropped, "confidence(unparseable)")
			}
		default:
			delete(m, "confidence")
			dropped = append(dropped, "confidence(type)")
		}
	}

	allowed := map[string]struct{}{"instructions": {}, "confidence": {}}
	for _, k := range listFields {
		allowed[k] = struct{}{}
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, err
	}
	return out, dropped, nil
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
