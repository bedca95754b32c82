package constants

// ScanStatus is the canonical status for rows in scan_jobs.
type ScanStatus string

// Stable values (store these exact strings in DB).
const (
	ScanStatusQueued   ScanStatus = "QUEUED"   // optional: queued for processing
	ScanStatusRunning  ScanStatus = "RUNNING"  // in progress
	ScanStatusOCROK    ScanStatus = "OCR_OK"   // stage 1 completed (text extracted)
	ScanStatusAnalyzed ScanStatus = "ANALYZED" // stage 2 completed (fields extracted)
	ScanStatusFailed   ScanStatus = "FAILED"   // terminal failure
)
