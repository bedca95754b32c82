package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/entity"
)

type FilesRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PrescriptionFile, error)
	GetByHash(ctx context.Context, hash []byte) (*entity.PrescriptionFile, error)
	Create(ctx context.Context, sourcePath, filename, ext string, size int, hash []byte, uploadedAt time.Time) (*entity.PrescriptionFile, error)
	UpsertByHash(ctx context.Context, sourcePath, filename, ext string, size int, hash []byte, uploadedAt time.Time) (*entity.PrescriptionFile, bool, error)
}

type filesRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewFilesRepository(db *DB, logger *slog.Logger) FilesRepository {
	return &filesRepo{db: db, logger: logger}
}

const fileColumns = `id, source_path, filename, file_ext, file_size, content_hash, uploaded_at`

func (r *filesRepo) scanFile(row *sql.Row) (*entity.PrescriptionFile, error) {
	var f entity.PrescriptionFile
	var id string
	err := row.Scan(&id, &f.SourcePath, &f.Filename, &f.FileExt, &f.FileSize, &f.ContentHash, &f.UploadedAt)
	if err != nil {
		return nil, err
	}
	f.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse file id %q: %w", id, err)
	}
	return &f, nil
}

func (r *filesRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.PrescriptionFile, error) {
	q := r.db.rebind(`SELECT ` + fileColumns + ` FROM prescription_files WHERE id = ?`)
	f, err := r.scanFile(r.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prescription file %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get prescription file", "file_id", id, "error", err)
		return nil, err
	}
	return f, nil
}

func (r *filesRepo) GetByHash(ctx context.Context, hash []byte) (*entity.PrescriptionFile, error) {
	q := r.db.rebind(`SELECT ` + fileColumns + ` FROM prescription_files WHERE content_hash = ?`)
	f, err := r.scanFile(r.db.QueryRowContext(ctx, q, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prescription file by hash: %w", common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get prescription file by hash", "error", err)
		return nil, err
	}
	return f, nil
}

func (r *filesRepo) Create(ctx context.Context, sourcePath, filename, ext string, size int, hash []byte, uploadedAt time.Time) (*entity.PrescriptionFile, error) {
	f := &entity.PrescriptionFile{
		ID:          uuid.New(),
		SourcePath:  sourcePath,
		Filename:    filename,
		FileExt:     ext,
		FileSize:    size,
		ContentHash: hash,
		UploadedAt:  uploadedAt,
	}
	q := r.db.rebind(`INSERT INTO prescription_files (` + fileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, f.ID.String(), f.SourcePath, f.Filename, f.FileExt, f.FileSize, f.ContentHash, f.UploadedAt)
	if err != nil {
		r.logger.Error("failed to create prescription file", "source_path", sourcePath, "filename", filename, "error", err)
		return nil, err
	}
	return f, nil
}

// UpsertByHash returns the existing row when the content hash is
// already known, so re-uploads and watch-folder rescans dedupe.
func (r *filesRepo) UpsertByHash(ctx context.Context, sourcePath, filename, ext string, size int, hash []byte, uploadedAt time.Time) (*entity.PrescriptionFile, bool, error) {
	if existing, err := r.GetByHash(ctx, hash); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}
	row, err := r.Create(ctx, sourcePath, filename, ext, size, hash, uploadedAt)
	if err != nil {
		r.logger.Error("failed to upsert prescription file by hash", "source_path", sourcePath, "filename", filename, "error", err)
		return nil, false, err
	}
	return row, false, nil
}
