package repository

import "context"

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS prescription_files (
	id TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	filename TEXT NOT NULL,
	file_ext TEXT NOT NULL,
	file_size INTEGER NOT NULL DEFAULT 0,
	content_hash BLOB NOT NULL,
	uploaded_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_prescription_files_hash ON prescription_files(content_hash);

CREATE TABLE IF NOT EXISTS scan_jobs (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL,
	format TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	error_message TEXT,
	ocr_confidence REAL,
	needs_review BOOLEAN NOT NULL DEFAULT 0,
	ocr_text TEXT,
	analysis_json TEXT,
	extracted_json TEXT,
	model_name TEXT,
	FOREIGN KEY (file_id) REFERENCES prescription_files(id)
);

CREATE INDEX IF NOT EXISTS idx_scan_jobs_file_id ON scan_jobs(file_id);
CREATE INDEX IF NOT EXISTS idx_scan_jobs_started_at ON scan_jobs(started_at);
CREATE INDEX IF NOT EXISTS idx_scan_jobs_status ON scan_jobs(status);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS prescription_files (
	id UUID PRIMARY KEY,
	source_path TEXT NOT NULL,
	filename TEXT NOT NULL,
	file_ext TEXT NOT NULL,
	file_size INTEGER NOT NULL DEFAULT 0,
	content_hash BYTEA NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_prescription_files_hash ON prescription_files(content_hash);

CREATE TABLE IF NOT EXISTS scan_jobs (
	id UUID PRIMARY KEY,
	file_id UUID NOT NULL REFERENCES prescription_files(id),
	format TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	error_message TEXT,
	ocr_confidence REAL,
	needs_review BOOLEAN NOT NULL DEFAULT FALSE,
	ocr_text TEXT,
	analysis_json TEXT,
	extracted_json TEXT,
	model_name TEXT
);

CREATE INDEX IF NOT EXISTS idx_scan_jobs_file_id ON scan_jobs(file_id);
CREATE INDEX IF NOT EXISTS idx_scan_jobs_started_at ON scan_jobs(started_at);
CREATE INDEX IF NOT EXISTS idx_scan_jobs_status ON scan_jobs(status);
`

// migrate creates the tables if they don't exist.
func (d *DB) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if d.dialect == DialectPostgres {
		schema = schemaPostgres
	}
	_, err := d.DB.ExecContext(ctx, schema)
	return err
}
