package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LineConfidenceThreshold is the default minimum per-line confidence for a
// detected text line to make it into the extraction result.
const LineConfidenceThreshold = 0.5

type Config struct {
	Engine    string // "tesseract" (exec, default) | "gosseract" (in-process)
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language    string // default "eng"
	TessdataDir string
	DPI         int // default 300

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	// LineConfidence is the minimum confidence (0..1) a text line needs to
	// be kept. Zero means the default threshold.
	LineConfidence float64
}

func (c Config) withDefaults() Config {
	if c.Engine == "" {
		c.Engine = "tesseract"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Language == "" {
		c.Language = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.LineConfidence <= 0 {
		c.LineConfidence = LineConfidenceThreshold
	}
	return c
}

// Line is one detected text line that survived the confidence filter.
// Confidence is 0..1; the box fields are pixel coordinates in the source image.
type Line struct {
	Text       string
	Confidence float64
	Left       int
	Top        int
	Width      int
	Height     int
}

// ExtractionResult is the outcome of recognizing one image. Lines are in
// reading order; Text joins their text with newlines after normalization.
type ExtractionResult struct {
	Lines      []Line
	Text       string
	Method     string
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float64
}

// Empty reports whether recognition produced no usable text. Callers treat
// this as its own outcome rather than an error.
func (r ExtractionResult) Empty() bool {
	return r.Text == ""
}

// Engine turns an image file into text. Implementations must be safe for
// concurrent use.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, path string) (ExtractionResult, error)
}

// NewEngine builds the engine selected by cfg.Engine.
func NewEngine(cfg Config, logger *slog.Logger) (Engine, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Engine {
	case "tesseract":
		return &tesseractEngine{cfg: cfg, runner: &execRunner{logger: logger}, logger: logger}, nil
	case "gosseract":
		return &gosseractEngine{cfg: cfg, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown ocr engine: %q", cfg.Engine)
	}
}
