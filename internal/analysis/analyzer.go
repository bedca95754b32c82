// Package analysis buckets OCR text into prescription elements using
// keyword and substring heuristics. The matcher is intentionally loose:
// false positives are accepted, and every rule works line by line on
// lower-cased input.
package analysis

import (
	"strings"
	"unicode/utf8"
)

// NoElementsMessage is returned when no rule matched anything.
const NoElementsMessage = "No specific prescription elements identified."

// Substring markers for each bucket. Order matters for frequencies and
// durations: the first term found in a line wins and the rest are skipped.
var (
	medicationMarkers = []string{"ol", "in", "um", "ide", "one", "cin", "xin"}
	dosageUnits       = []string{"mg", "ml", "g", "mcg"}
	frequencyTerms    = []string{"daily", "twice", "times", "hourly", "weekly", "every"}
	durationTerms     = []string{"days", "weeks", "months", "for"}
)

// FieldSet holds the four deduplicated element buckets. Slices are never
// nil so the JSON form always carries arrays.
type FieldSet struct {
	Medications []string `json:"medications"`
	Dosages     []string `json:"dosages"`
	Frequencies []string `json:"frequencies"`
	Durations   []string `json:"durations"`
}

// Result is the outcome of analyzing one block of text. Message is set to
// NoElementsMessage when every bucket came back empty, so callers can tell
// an empty result from a populated one without inspecting each slice.
type Result struct {
	FieldSet
	Message string `json:"message,omitempty"`
}

// Empty reports whether no bucket matched.
func (r Result) Empty() bool {
	return len(r.Medications) == 0 && len(r.Dosages) == 0 &&
		len(r.Frequencies) == 0 && len(r.Durations) == 0
}

// Analyzer applies the rule set. It is stateless and safe for concurrent use.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze splits text on newlines and matches each line independently.
// It never fails: unmatchable input produces a Result with the sentinel
// message rather than an error.
func (a *Analyzer) Analyze(text string) Result {
	var meds, doses, freqs, durs []string

	for _, raw := range strings.Split(text, "\n") {
		line := strings.ToLower(strings.TrimSpace(raw))

		for _, word := range strings.Fields(line) {
			if utf8.RuneCountInString(word) > 3 && containsAny(word, medicationMarkers) {
				meds = append(meds, word)
			}
		}

		for _, unit := range dosageUnits {
			before, _, found := strings.Cut(line, unit)
			if !found || before == "" {
				continue
			}
			words := strings.Fields(before)
			if len(words) == 0 {
				continue
			}
			doses = append(doses, words[len(words)-1]+unit)
		}

		if window, ok := firstTermWindow(line, frequencyTerms, 10, 20); ok {
			freqs = append(freqs, window)
		}
		if window, ok := firstTermWindow(line, durationTerms, 10, 10); ok {
			durs = append(durs, window)
		}
	}

	result := Result{
		FieldSet: FieldSet{
			Medications: dedupe(meds),
			Dosages:     dedupe(doses),
			Frequencies: dedupe(freqs),
			Durations:   dedupe(durs),
		},
	}
	if result.Empty() {
		result.Message = NoElementsMessage
	}
	return result
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// firstTermWindow returns the trimmed snippet of line surrounding the first
// term (in terms order) that occurs in it. The window spans `before` runes
// ahead of the match start and `after` runes past it, clamped to the line.
func firstTermWindow(line string, terms []string, before, after int) (string, bool) {
	for _, term := range terms {
		idx := strings.Index(line, term)
		if idx < 0 {
			continue
		}
		runes := []rune(line)
		at := utf8.RuneCountInString(line[:idx])
		start := at - before
		if start < 0 {
			start = 0
		}
		end := at + after
		if end > len(runes) {
			end = len(runes)
		}
		return strings.TrimSpace(string(runes[start:end])), true
	}
	return "", false
}

// dedupe drops repeated values, keeping first-seen order. The returned
// slice is never nil.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
