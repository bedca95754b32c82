package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// tesseractEngine shells out to the tesseract binary in TSV mode. One
// invocation yields both the recognized words and their confidences, which
// get grouped back into lines here.
type tesseractEngine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func (e *tesseractEngine) Name() string { return "tesseract" }

func (e *tesseractEngine) Recognize(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()

	args := []string{path, "stdout", "-l", e.cfg.Language}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	if e.cfg.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(e.cfg.DPI))
	}
	// TSV output
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return ExtractionResult{Warnings: []string{string(errb)}}, fmt.Errorf("tesseract: %w", err)
	}

	lines := groupLines(parseTSVWords(out))
	res := assembleResult(lines, e.cfg.LineConfidence)
	res.Method = e.Name()
	res.Language = e.cfg.Language
	res.Duration = time.Since(start)

	e.logger.Debug("tesseract recognize done",
		"path", path,
		"lines_total", len(lines),
		"lines_kept", len(res.Lines),
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// assembleResult filters lines below minConfidence, joins the survivors and
// blends their mean OCR confidence with the text heuristic.
func assembleResult(lines []Line, minConfidence float64) ExtractionResult {
	kept := make([]Line, 0, len(lines))
	var sum float64
	for _, ln := range lines {
		if ln.Confidence > minConfidence {
			kept = append(kept, ln)
			sum += ln.Confidence
		}
	}

	parts := make([]string, len(kept))
	for i, ln := range kept {
		parts[i] = ln.Text
	}
	text := Normalize(strings.Join(parts, "\n"))

	var ocrConf float64
	if len(kept) > 0 {
		ocrConf = sum / float64(len(kept))
	}
	heurConf := heuristicConfidence(text)

	// blend: weight OCR higher if present
	var conf float64
	switch {
	case text == "":
		conf = 0
	case ocrConf > 0:
		conf = 0.7*ocrConf + 0.3*heurConf
	default:
		conf = heurConf
	}
	if conf > 1.0 {
		conf = 1.0
	}

	return ExtractionResult{
		Lines:      kept,
		Text:       text,
		Confidence: conf,
	}
}

// tsvWord is one level-5 row of tesseract TSV output.
type tsvWord struct {
	page, block, par, line   int
	left, top, width, height int
	conf                     float64
	text                     string
}

// parseTSVWords keeps word rows with a real confidence value. Header,
// structural rows (conf -1) and malformed lines are dropped.
func parseTSVWords(out []byte) []tsvWord {
	rows := strings.Split(string(out), "\n")
	words := make([]tsvWord, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue // skip header
		}
		cols := strings.SplitN(row, "\t", 12)
		if len(cols) < 12 {
			continue
		}
		level, err := strconv.Atoi(cols[0])
		if err != nil || level != 5 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		conf, err := strconv.ParseFloat(confStr, 64)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		w := tsvWord{conf: conf / 100.0, text: text}
		w.page, _ = strconv.Atoi(cols[1])
		w.block, _ = strconv.Atoi(cols[2])
		w.par, _ = strconv.Atoi(cols[3])
		w.line, _ = strconv.Atoi(cols[4])
		w.left, _ = strconv.Atoi(cols[6])
		w.top, _ = strconv.Atoi(cols[7])
		w.width, _ = strconv.Atoi(cols[8])
		w.height, _ = strconv.Atoi(cols[9])
		words = append(words, w)
	}
	return words
}

// groupLines merges words that share (page, block, paragraph, line) into
// text lines, in encounter order. Line confidence is the mean of its word
// confidences and the box is the union of the word boxes.
func groupLines(words []tsvWord) []Line {
	type key struct{ page, block, par, line int }

	var order []key
	acc := make(map[key]*struct {
		texts                  []string
		sum                    float64
		n                      int
		left, top, right, bott int
	})

	for _, w := range words {
		k := key{w.page, w.block, w.par, w.line}
		a, ok := acc[k]
		if !ok {
			a = &struct {
				texts                  []string
				sum                    float64
				n                      int
				left, top, right, bott int
			}{left: w.left, top: w.top, right: w.left + w.width, bott: w.top + w.height}
			acc[k] = a
			order = append(order, k)
		}
		a.texts = append(a.texts, w.text)
		a.sum += w.conf
		a.n++
		if w.left < a.left {
			a.left = w.left
		}
		if w.top < a.top {
			a.top = w.top
		}
		if r := w.left + w.width; r > a.right {
			a.right = r
		}
		if b := w.top + w.height; b > a.bott {
			a.bott = b
		}
	}

	lines := make([]Line, 0, len(order))
	for _, k := range order {
		a := acc[k]
		lines = append(lines, Line{
			Text:       strings.Join(a.texts, " "),
			Confidence: a.sum / float64(a.n),
			Left:       a.left,
			Top:        a.top,
			Width:      a.right - a.left,
			Height:     a.bott - a.top,
		})
	}
	return lines
}
