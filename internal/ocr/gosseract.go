package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// gosseractEngine runs tesseract in-process through its C API. Heavier to
// deploy than the exec engine but avoids a process per image.
type gosseractEngine struct {
	cfg    Config
	logger *slog.Logger
}

func (e *gosseractEngine) Name() string { return "gosseract" }

func (e *gosseractEngine) Recognize(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return ExtractionResult{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("read image: %w", err)
	}

	c := gosseract.NewClient()
	defer c.Close()

	if err := c.SetImageFromBytes(data); err != nil {
		return ExtractionResult{}, fmt.Errorf("set image: %w", err)
	}
	if langs := strings.Split(e.cfg.Language, "+"); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return ExtractionResult{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if e.cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(e.cfg.TessdataDir); err != nil {
			return ExtractionResult{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if e.cfg.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.cfg.PSM)); err != nil {
			return ExtractionResult{}, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if e.cfg.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(e.cfg.DPI)); err != nil {
			return ExtractionResult{}, fmt.Errorf("set dpi: %w", err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("recognize text lines: %w", err)
	}

	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, Line{
			Text:       text,
			Confidence: b.Confidence / 100.0,
			Left:       b.Box.Min.X,
			Top:        b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
		})
	}

	res := assembleResult(lines, e.cfg.LineConfidence)
	res.Method = e.Name()
	res.Language = e.cfg.Language
	res.Duration = time.Since(start)

	e.logger.Debug("gosseract recognize done",
		"path", path,
		"lines_total", len(boxes),
		"lines_kept", len(res.Lines),
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
