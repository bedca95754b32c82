package ocr

import (
	"regexp"
	"strings"
)

var (
	reDose = regexp.MustCompile(`\b\d+(\.\d+)?\s?(mg|mcg|ml|g)\b`)
	reFreq = regexp.MustCompile(`\b(daily|twice|hourly|weekly|every|times)\b`)
	reRx   = regexp.MustCompile(`\brx\b|\btake\b|\btablet\b|\bcapsule\b|\bdr\.?\b`)
)

func hasDosePattern(s string) bool { return reDose.MatchString(s) }
func hasFreqPattern(s string) bool { return reFreq.MatchString(s) }
func hasRxPattern(s string) bool   { return reRx.MatchString(s) }

// naive heuristic confidence based on decoded text characteristics
func heuristicConfidence(txt string) float64 {
	// boost when the text carries common prescription artifacts
	// (dosage-ish, frequency-ish, Rx-ish). Each adds a little.
	txtL := strings.ToLower(txt)
	score := 0.2 // base
	if hasDosePattern(txtL) {
		score += 0.2
	}
	if hasFreqPattern(txtL) {
		score += 0.15
	}
	if hasRxPattern(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}
