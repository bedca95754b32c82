package ocr

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"tabs and runs", "a\t\tb   c", "a b c"},
		{"blank line collapse", "a\n\n\n\nb", "a\n\nb"},
		{"trailing spaces", "line one   \nline two ", "line one\nline two"},
		{"signature rule dropped", "Rx:\n__________\nAmoxicillin", "Rx:\nAmoxicillin"},
		{"oh for zero in dose", "Amoxicillin 5OOmg", "Amoxicillin 500mg"},
		{"oh for zero at token end", "take for 1O days", "take for 10 days"},
		{"zero for oh in word", "0nce daily with meals", "Once daily with meals"},
		{"decimal dose untouched", "take 0.5 mg", "take 0.5 mg"},
		{"plain numbers untouched", "lot 07 exp 2025", "lot 07 exp 2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHeuristicConfidence(t *testing.T) {
	if got := heuristicConfidence(""); got != 0.2 {
		t.Errorf("base confidence = %v, want 0.2", got)
	}
	plain := heuristicConfidence("nothing interesting here")
	rich := heuristicConfidence("Rx: take amoxicillin 500mg twice daily")
	if rich <= plain {
		t.Errorf("prescription-looking text scored %v, plain text %v; want higher", rich, plain)
	}
	long := heuristicConfidence("Rx: take amoxicillin 500 mg twice daily with water after meals, " +
		"then metformin 1000 mg every morning for two weeks as directed by your doctor")
	if long > 1.0 {
		t.Errorf("confidence %v exceeds 1.0", long)
	}
}
