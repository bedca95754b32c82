package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reSpaceRun   = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	// ruled separators and signature lines come through as runs of _ or -
	reRuleLine = regexp.MustCompile(`(?m)^[ \t]*[_\-]{3,}[ \t]*\n?`)
	// letter O standing in for a zero inside a number or dose ("5OOmg", "1O")
	reOForZero = regexp.MustCompile(`\d[Oo]+(?:\d|mg\b|ml\b|mcg\b|g\b)|\d[Oo]+\b`)
	// zero standing in for a leading letter O ("0nce", "0ral")
	reZeroForO = regexp.MustCompile(`\b0([A-Za-z][a-z]{2,})`)
)

// Normalize collapses noisy whitespace and fixes OCR artifacts common in
// scanned prescriptions. Conservative: keeps line breaks; collapses >2
// newlines into a single blank line.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\t", " ")
	s = reSpaceRun.ReplaceAllString(s, " ")
	s = reRuleLine.ReplaceAllString(s, "")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")

	s = reOForZero.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Map(func(r rune) rune {
			if r == 'O' || r == 'o' {
				return '0'
			}
			return r
		}, m)
	})
	s = reZeroForO.ReplaceAllString(s, "O$1")
	return strings.TrimSpace(s)
}
