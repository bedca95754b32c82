package export

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/osoji/rxscan/constants"
	"github.com/osoji/rxscan/internal/entity"
	"github.com/osoji/rxscan/internal/repository"
)

type stubJobs struct {
	rows       []repository.ScanHistoryRow
	lastFilter repository.ListFilter
}

func (s *stubJobs) Start(context.Context, uuid.UUID, string, constants.ScanStatus) (*entity.ScanJob, error) {
	return nil, nil
}
func (s *stubJobs) MarkRunning(context.Context, uuid.UUID) error { return nil }
func (s *stubJobs) FinishOCR(context.Context, uuid.UUID, string, float32, bool, string) error {
	return nil
}
func (s *stubJobs) FinishAnalysis(context.Context, uuid.UUID, []byte, []byte) error { return nil }
func (s *stubJobs) Fail(context.Context, uuid.UUID, string) error                   { return nil }
func (s *stubJobs) GetByID(context.Context, uuid.UUID) (*entity.ScanJob, error)    { return nil, nil }

func (s *stubJobs) List(_ context.Context, filter repository.ListFilter) ([]repository.ScanHistoryRow, error) {
	s.lastFilter = filter
	return s.rows, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleRows(t *testing.T) []repository.ScanHistoryRow {
	t.Helper()
	conf := float32(0.87)
	errMsg := "tesseract exited 1"
	analysisJSON, err := json.Marshal(map[string]any{
		"medications": []string{"amoxicillin", "metformin"},
		"dosages":     []string{"500mg"},
		"frequencies": []string{"three times daily"},
		"durations":   []string{"for 7 days"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return []repository.ScanHistoryRow{
		{
			ScanJob: entity.ScanJob{
				ID:            uuid.New(),
				FileID:        uuid.New(),
				Format:        "PNG",
				Status:        string(constants.ScanStatusAnalyzed),
				StartedAt:     time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
				OCRConfidence: &conf,
				AnalysisJSON:  analysisJSON,
			},
			Filename:   "rx-amoxicillin.png",
			SourcePath: "/data/inbox/rx-amoxicillin.png",
		},
		{
			ScanJob: entity.ScanJob{
				ID:           uuid.New(),
				FileID:       uuid.New(),
				Format:       "JPEG",
				Status:       string(constants.ScanStatusFailed),
				StartedAt:    time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC),
				ErrorMessage: &errMsg,
				NeedsReview:  true,
			},
			Filename:   "blurry.jpg",
			SourcePath: "/data/inbox/blurry.jpg",
		},
	}
}

func TestExportScansXLSX(t *testing.T) {
	jobs := &stubJobs{rows: sampleRows(t)}
	svc := NewService(jobs, testLogger())

	data, err := svc.ExportScansXLSX(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("ExportScansXLSX() error = %v", err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	cell := func(ref string) string {
		t.Helper()
		v, err := wb.GetCellValue("Scans", ref)
		if err != nil {
			t.Fatalf("cell %s: %v", ref, err)
		}
		return v
	}

	if got := cell("A1"); got != "Scanned At" {
		t.Errorf("A1 = %q", got)
	}
	if got := cell("A2"); got != "2025-03-10 14:30:00" {
		t.Errorf("A2 = %q", got)
	}
	if got := cell("B2"); got != "rx-amoxicillin.png" {
		t.Errorf("B2 = %q", got)
	}
	if got := cell("C2"); got != "ANALYZED" {
		t.Errorf("C2 = %q", got)
	}
	if got := cell("D2"); got != "0.87" {
		t.Errorf("D2 = %q", got)
	}
	if got := cell("F2"); got != "amoxicillin; metformin" {
		t.Errorf("F2 = %q", got)
	}
	if got := cell("I2"); got != "for 7 days" {
		t.Errorf("I2 = %q", got)
	}

	// failed row carries the error and the review flag, empty buckets
	if got := cell("C3"); got != "FAILED" {
		t.Errorf("C3 = %q", got)
	}
	if got := cell("E3"); got != "yes" {
		t.Errorf("E3 = %q", got)
	}
	if got := cell("J3"); got != "tesseract exited 1" {
		t.Errorf("J3 = %q", got)
	}
	if got := cell("F3"); got != "" {
		t.Errorf("F3 = %q, want empty", got)
	}
}

func TestExportDateWindowInclusive(t *testing.T) {
	jobs := &stubJobs{}
	svc := NewService(jobs, testLogger())

	from := time.Date(2025, 3, 1, 18, 45, 0, 0, time.UTC)
	to := time.Date(2025, 3, 10, 6, 15, 0, 0, time.UTC)
	if _, err := svc.ExportScansXLSX(context.Background(), &from, &to, constants.ScanStatusAnalyzed); err != nil {
		t.Fatalf("ExportScansXLSX() error = %v", err)
	}

	wantFrom := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	if !jobs.lastFilter.From.Equal(wantFrom) {
		t.Errorf("From = %v, want %v", jobs.lastFilter.From, wantFrom)
	}
	if !jobs.lastFilter.To.Equal(wantTo) {
		t.Errorf("To = %v, want %v", jobs.lastFilter.To, wantTo)
	}
	if jobs.lastFilter.Status != constants.ScanStatusAnalyzed {
		t.Errorf("Status = %q", jobs.lastFilter.Status)
	}
}

func TestExportFromOnlyDefaultsToToday(t *testing.T) {
	jobs := &stubJobs{}
	svc := NewService(jobs, testLogger())

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.ExportScansXLSX(context.Background(), &from, nil, ""); err != nil {
		t.Fatalf("ExportScansXLSX() error = %v", err)
	}
	if jobs.lastFilter.To.IsZero() {
		t.Error("To not defaulted when only from is given")
	}
	if !jobs.lastFilter.To.After(time.Now().UTC()) {
		t.Errorf("To = %v, want past now so today is included", jobs.lastFilter.To)
	}
}

func TestWriteScansXLSX(t *testing.T) {
	jobs := &stubJobs{rows: sampleRows(t)}
	svc := NewService(jobs, testLogger())

	path := t.TempDir() + "/scans.xlsx"
	if err := svc.WriteScansXLSX(context.Background(), path, nil, nil, ""); err != nil {
		t.Fatalf("WriteScansXLSX() error = %v", err)
	}
	wb, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open exported file: %v", err)
	}
	defer wb.Close()
	rows, err := wb.GetRows("Scans")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want header + 2", len(rows))
	}
}
