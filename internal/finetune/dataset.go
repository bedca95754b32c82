// Package finetune prepares the prescription seq2seq fine-tuning dataset:
// seed pairs, train/eval splitting and JSONL emission. Training itself runs
// outside this codebase on the emitted files.
package finetune

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
)

// Pair is one training example. OutputText is the JSON document the model
// should produce for InputText.
type Pair struct {
	InputText  string `json:"input_text"`
	OutputText string `json:"output_text"`
}

// SeedPairs returns the built-in canonical examples. Targets are real JSON,
// not stringified dictionaries, so downstream consumers can parse them.
func SeedPairs() []Pair {
	return []Pair{
		{
			InputText:  "Patient prescribed Amoxicillin 500mg three times daily for 7 days",
			OutputText: `{"medication":"Amoxicillin","dosage":"500mg","frequency":"three times daily","duration":"7 days"}`,
		},
		{
			InputText:  "Take Metformin 1000mg twice daily with meals",
			OutputText: `{"medication":"Metformin","dosage":"1000mg","frequency":"twice daily","instructions":"with meals"}`,
		},
	}
}

type rawPair struct {
	InputText  string          `json:"input_text"`
	OutputText json.RawMessage `json:"output_text"`
}

// LoadPairs reads extra examples from a JSON array file. output_text may be
// a JSON string or an inline object; objects are compacted into the string
// form the trainer expects.
func LoadPairs(path string) ([]Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	var raw []rawPair
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}

	pairs := make([]Pair, 0, len(raw))
	for i, rp := range raw {
		if strings.TrimSpace(rp.InputText) == "" {
			return nil, fmt.Errorf("pair %d: input_text is empty", i)
		}
		out, err := normalizeOutput(rp.OutputText)
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		pairs = append(pairs, Pair{InputText: rp.InputText, OutputText: out})
	}
	return pairs, nil
}

func normalizeOutput(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("output_text is missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("output_text is empty")
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("output_text is neither a string nor valid JSON: %w", err)
	}
	return buf.String(), nil
}

// Split is the train/eval partition of a dataset.
type Split struct {
	Train []Pair
	Eval  []Pair
}

// SplitPairs shuffles with the given seed and carves off evalFraction for
// evaluation, rounding the eval share up but always leaving at least one
// training pair.
func SplitPairs(pairs []Pair, evalFraction float64, seed int64) Split {
	shuffled := make([]Pair, len(pairs))
	copy(shuffled, pairs)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if evalFraction <= 0 || len(shuffled) == 0 {
		return Split{Train: shuffled, Eval: []Pair{}}
	}
	evalCount := int(math.Ceil(evalFraction * float64(len(shuffled))))
	if evalCount >= len(shuffled) {
		evalCount = len(shuffled) - 1
	}
	cut := len(shuffled) - evalCount
	return Split{Train: shuffled[:cut], Eval: shuffled[cut:]}
}

// WriteJSONL writes one pair per line.
func WriteJSONL(path string, pairs []Pair) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	for _, p := range pairs {
		line, err := json.Marshal(p)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
