package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/osoji/rxscan/constants"
	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/entity"
)

type ScanJobsRepository interface {
	Start(ctx context.Context, fileID uuid.UUID, format string, status constants.ScanStatus) (*entity.ScanJob, error)
	MarkRunning(ctx context.Context, jobID uuid.UUID) error
	FinishOCR(ctx context.Context, jobID uuid.UUID, ocrText string, confidence float32, needsReview bool, modelName string) error
	FinishAnalysis(ctx context.Context, jobID uuid.UUID, analysisJSON, extractedJSON []byte) error
	Fail(ctx context.Context, jobID uuid.UUID, message string) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*entity.ScanJob, error)
	List(ctx context.Context, filter ListFilter) ([]ScanHistoryRow, error)
}

// ListFilter narrows List results. Zero times mean unbounded; an
// empty status matches every job.
type ListFilter struct {
	From   time.Time
	To     time.Time
	Status constants.ScanStatus
	Limit  int
}

// ScanHistoryRow is a scan job joined with its source file, the shape
// the history listing and the XLSX export both read.
type ScanHistoryRow struct {
	entity.ScanJob
	Filename   string `json:"filename"`
	SourcePath string `json:"source_path"`
}

type scanJobsRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewScanJobsRepository(db *DB, logger *slog.Logger) ScanJobsRepository {
	return &scanJobsRepo{db: db, logger: logger}
}

func (r *scanJobsRepo) Start(ctx context.Context, fileID uuid.UUID, format string, status constants.ScanStatus) (*entity.ScanJob, error) {
	job := &entity.ScanJob{
		ID:        uuid.New(),
		FileID:    fileID,
		Format:    format,
		Status:    string(status),
		StartedAt: time.Now().UTC(),
	}
	q := r.db.rebind(`INSERT INTO scan_jobs (id, file_id, format, status, started_at, needs_review) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, job.ID.String(), job.FileID.String(), job.Format, job.Status, job.StartedAt, job.NeedsReview)
	if err != nil {
		r.logger.Error("scan_job start failed", "file_id", fileID, "err", err)
		return nil, err
	}
	r.logger.Info("scan_job started", "job_id", job.ID, "file_id", fileID, "format", format, "status", status)
	return job, nil
}

func (r *scanJobsRepo) MarkRunning(ctx context.Context, jobID uuid.UUID) error {
	q := r.db.rebind(`UPDATE scan_jobs SET status = ? WHERE id = ?`)
	return r.exec(ctx, jobID, q, string(constants.ScanStatusRunning), jobID.String())
}

func (r *scanJobsRepo) FinishOCR(ctx context.Context, jobID uuid.UUID, ocrText string, confidence float32, needsReview bool, modelName string) error {
	q := r.db.rebind(`UPDATE scan_jobs SET status = ?, ocr_text = ?, ocr_confidence = ?, needs_review = ?, model_name = ? WHERE id = ?`)
	err := r.exec(ctx, jobID, q, string(constants.ScanStatusOCROK), ocrText, float64(confidence), needsReview, modelName, jobID.String())
	if err != nil {
		r.logger.Error("scan_job finish(OCR_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.logger.Info("scan_job finished OCR", "job_id", jobID, "method", modelName, "confidence", confidence, "needs_review", needsReview)
	return nil
}

func (r *scanJobsRepo) FinishAnalysis(ctx context.Context, jobID uuid.UUID, analysisJSON, extractedJSON []byte) error {
	var analysis, extracted any
	if len(analysisJSON) > 0 {
		analysis = string(analysisJSON)
	}
	if len(extractedJSON) > 0 {
		extracted = string(extractedJSON)
	}
	q := r.db.rebind(`UPDATE scan_jobs SET status = ?, analysis_json = ?, extracted_json = ?, finished_at = ? WHERE id = ?`)
	err := r.exec(ctx, jobID, q, string(constants.ScanStatusAnalyzed), analysis, extracted, time.Now().UTC(), jobID.String())
	if err != nil {
		r.logger.Error("scan_job finish(ANALYZED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.logger.Info("scan_job finished (ANALYZED)", "job_id", jobID)
	return nil
}

func (r *scanJobsRepo) Fail(ctx context.Context, jobID uuid.UUID, message string) error {
	q := r.db.rebind(`UPDATE scan_jobs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`)
	err := r.exec(ctx, jobID, q, string(constants.ScanStatusFailed), message, time.Now().UTC(), jobID.String())
	if err != nil {
		r.logger.Error("scan_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.logger.Warn("scan_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *scanJobsRepo) exec(ctx context.Context, jobID uuid.UUID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("scan job %s: %w", jobID, common.ErrNotFound)
	}
	return nil
}

const jobColumns = `id, file_id, format, status, started_at, finished_at, error_message, ocr_confidence, needs_review, ocr_text, analysis_json, extracted_json, model_name`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner, extra ...any) (*entity.ScanJob, error) {
	var (
		j             entity.ScanJob
		id, fileID    string
		finishedAt    sql.NullTime
		errorMessage  sql.NullString
		ocrConfidence sql.NullFloat64
		ocrText       sql.NullString
		analysisJSON  sql.NullString
		extractedJSON sql.NullString
		modelName     sql.NullString
	)
	dest := []any{
		&id, &fileID, &j.Format, &j.Status, &j.StartedAt, &finishedAt, &errorMessage,
		&ocrConfidence, &j.NeedsReview, &ocrText, &analysisJSON, &extractedJSON, &modelName,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	if j.FileID, err = uuid.Parse(fileID); err != nil {
		return nil, fmt.Errorf("parse job file id %q: %w", fileID, err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		j.FinishedAt = &t
	}
	if errorMessage.Valid {
		j.ErrorMessage = &errorMessage.String
	}
	if ocrConfidence.Valid {
		c := float32(ocrConfidence.Float64)
		j.OCRConfidence = &c
	}
	if ocrText.Valid {
		j.OCRText = &ocrText.String
	}
	if analysisJSON.Valid {
		j.AnalysisJSON = []byte(analysisJSON.String)
	}
	if extractedJSON.Valid {
		j.ExtractedJSON = []byte(extractedJSON.String)
	}
	if modelName.Valid {
		j.ModelName = &modelName.String
	}
	return &j, nil
}

func (r *scanJobsRepo) GetByID(ctx context.Context, jobID uuid.UUID) (*entity.ScanJob, error) {
	q := r.db.rebind(`SELECT ` + jobColumns + ` FROM scan_jobs WHERE id = ?`)
	job, err := scanJob(r.db.QueryRowContext(ctx, q, jobID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan job %s: %w", jobID, common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get scan job", "job_id", jobID, "error", err)
		return nil, err
	}
	return job, nil
}

func (r *scanJobsRepo) List(ctx context.Context, filter ListFilter) ([]ScanHistoryRow, error) {
	query := `SELECT j.id, j.file_id, j.format, j.status, j.started_at, j.finished_at, j.error_message,
		j.ocr_confidence, j.needs_review, j.ocr_text, j.analysis_json, j.extracted_json, j.model_name,
		f.filename, f.source_path
		FROM scan_jobs j
		JOIN prescription_files f ON f.id = j.file_id`

	var conds []string
	var args []any
	if !filter.From.IsZero() {
		conds = append(conds, "j.started_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, "j.started_at < ?")
		args = append(args, filter.To)
	}
	if filter.Status != "" {
		conds = append(conds, "j.status = ?")
		args = append(args, string(filter.Status))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
			continue
		}
		query += " AND " + c
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY j.started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		r.logger.Error("failed to list scan jobs", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []ScanHistoryRow
	for rows.Next() {
		var rec ScanHistoryRow
		job, err := scanJob(rows, &rec.Filename, &rec.SourcePath)
		if err != nil {
			return nil, err
		}
		rec.ScanJob = *job
		out = append(out, rec)
	}
	return out, rows.Err()
}
