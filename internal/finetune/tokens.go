package finetune

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Sequence limits of the downstream seq2seq trainer. Pairs over either
// limit are flagged, not dropped.
const (
	MaxSourceTokens = 128
	MaxTargetTokens = 128
)

// TokenCounter abstracts the tokenizer so accounting is testable without a
// tokenizer.json on disk.
type TokenCounter interface {
	Count(text string) (int, error)
}

// HFTokenizer counts tokens with a HuggingFace tokenizer.json vocabulary.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

func LoadTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

func (h *HFTokenizer) Count(text string) (int, error) {
	enc, err := h.tk.EncodeSingle(text, true)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return len(enc.GetIds()), nil
}

// PairTokens is the token accounting for one pair.
type PairTokens struct {
	InputTokens     int
	TargetTokens    int
	InputTruncated  bool
	TargetTruncated bool
}

// Stats aggregates accounting over a dataset.
type Stats struct {
	Pairs           int
	MaxInputTokens  int
	MaxTargetTokens int
	InputTruncated  int
	TargetTruncated int
}

// Account computes per-pair token counts and truncation flags against the
// trainer's 128/128 limits.
func Account(counter TokenCounter, pairs []Pair) ([]PairTokens, Stats, error) {
	perPair := make([]PairTokens, 0, len(pairs))
	stats := Stats{Pairs: len(pairs)}

	for i, p := range pairs {
		in, err := counter.Count(p.InputText)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("pair %d input: %w", i, err)
		}
		out, err := counter.Count(p.OutputText)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("pair %d target: %w", i, err)
		}

		pt := PairTokens{
			InputTokens:     in,
			TargetTokens:    out,
			InputTruncated:  in > MaxSourceTokens,
			TargetTruncated: out > MaxTargetTokens,
		}
		perPair = append(perPair, pt)

		if in > stats.MaxInputTokens {
			stats.MaxInputTokens = in
		}
		if out > stats.MaxTargetTokens {
			stats.MaxTargetTokens = out
		}
		if pt.InputTruncated {
			stats.InputTruncated++
		}
		if pt.TargetTruncated {
			stats.TargetTruncated++
		}
	}
	return perPair, stats, nil
}
