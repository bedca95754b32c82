package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osoji/rxscan/constants"
	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/repository"
)

// handleListScans returns scan history, newest first. Query parameters:
// from/to (YYYY-MM-DD, inclusive), status, limit.
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ListFilter{}
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be YYYY-MM-DD"})
		return
	}
	if from != nil {
		filter.From = *from
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be YYYY-MM-DD"})
		return
	}
	if to != nil {
		// listing compares started_at < To; include the whole requested day
		filter.To = to.AddDate(0, 0, 1)
	}
	if v := q.Get("status"); v != "" {
		filter.Status = constants.ScanStatus(strings.ToUpper(strings.TrimSpace(v)))
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	rows, err := s.jobsRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list scans failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list scans"})
		return
	}
	if rows == nil {
		rows = []repository.ScanHistoryRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": rows, "count": len(rows)})
}

// handleGetScan returns one scan job by id.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id must be a UUID"})
		return
	}

	job, err := s.jobsRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "scan not found"})
			return
		}
		s.logger.Error("get scan failed", "scan_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load scan"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleExportXLSX streams the scan history workbook. The export service
// applies the same inclusive date-window semantics as the JSON listing.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be YYYY-MM-DD"})
		return
	}
	var status constants.ScanStatus
	if v := q.Get("status"); v != "" {
		status = constants.ScanStatus(strings.ToUpper(strings.TrimSpace(v)))
	}

	data, err := s.exporter.ExportScansXLSX(r.Context(), from, to, status)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="prescription-scans.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func parseDateParam(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
