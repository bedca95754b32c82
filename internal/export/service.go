// Package export renders scan history as XLSX workbooks for download or
// archival.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/osoji/rxscan/constants"
	"github.com/osoji/rxscan/internal/analysis"
	"github.com/osoji/rxscan/internal/repository"
)

// Service is a tiny façade over the scan repository that produces XLSX bytes.
type Service struct {
	jobsRepo repository.ScanJobsRepository
	logger   *slog.Logger
}

func NewService(jobsRepo repository.ScanJobsRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobsRepo: jobsRepo, logger: logger}
}

// ExportScansXLSX returns an XLSX workbook (as bytes) for the given date
// window and optional status filter.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> the most recent scans up to the listing cap.
func (s *Service) ExportScansXLSX(ctx context.Context, from, to *time.Time, status constants.ScanStatus) ([]byte, error) {
	start := time.Now()

	filter := repository.ListFilter{Status: status}
	if from != nil {
		filter.From = dateOnly(*from)
	}
	if to != nil {
		// the repository compares started_at < To, so push the bound past
		// the requested day to keep it inclusive
		filter.To = dateOnly(*to).AddDate(0, 0, 1)
	}
	if !filter.From.IsZero() && filter.To.IsZero() {
		filter.To = dateOnly(time.Now().UTC()).AddDate(0, 0, 1)
	}

	rows, err := s.jobsRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Scans"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Scanned At",
		"Filename",
		"Status",
		"Confidence",
		"Needs Review",
		"Medications",
		"Dosages",
		"Frequencies",
		"Durations",
		"Error",
		"File Path",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range rows {
		var fields analysis.FieldSet
		if len(r.AnalysisJSON) > 0 {
			// stale rows may carry malformed JSON; leave the buckets blank
			_ = json.Unmarshal(r.AnalysisJSON, &fields)
		}

		confidence := ""
		if r.OCRConfidence != nil {
			confidence = fmt.Sprintf("%.2f", *r.OCRConfidence)
		}
		review := ""
		if r.NeedsReview {
			review = "yes"
		}
		errMsg := ""
		if r.ErrorMessage != nil {
			errMsg = truncate(*r.ErrorMessage, 140)
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.StartedAt.UTC().Format("2006-01-02 15:04:05"))
		write(2, r.Filename)
		write(3, r.Status)
		write(4, confidence)
		write(5, review)
		write(6, strings.Join(fields.Medications, "; "))
		write(7, strings.Join(fields.Dosages, "; "))
		write(8, strings.Join(fields.Frequencies, "; "))
		write(9, strings.Join(fields.Durations, "; "))
		write(10, errMsg)
		write(11, r.SourcePath)

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 20) // timestamp
	_ = f.SetColWidth(sheet, "B", "B", 28) // filename
	_ = f.SetColWidth(sheet, "C", "E", 12) // status/confidence/review
	_ = f.SetColWidth(sheet, "F", "I", 32) // buckets
	_ = f.SetColWidth(sheet, "J", "J", 40) // error
	_ = f.SetColWidth(sheet, "K", "K", 60) // path

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteScansXLSX exports to a file on disk, for the batch CLI.
func (s *Service) WriteScansXLSX(ctx context.Context, path string, from, to *time.Time, status constants.ScanStatus) error {
	data, err := s.ExportScansXLSX(ctx, from, to, status)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
