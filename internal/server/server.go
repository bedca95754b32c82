// Package server exposes the scanning pipeline over HTTP: image upload,
// scan history, XLSX export and liveness.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/export"
	"github.com/osoji/rxscan/internal/pipeline"
	"github.com/osoji/rxscan/internal/repository"
)

// Server wires the HTTP handlers to the pipeline and repositories.
type Server struct {
	cfg      common.ServerConfig
	proc     *pipeline.Processor
	jobsRepo repository.ScanJobsRepository
	exporter *export.Service
	db       *repository.DB
	static   http.Handler
	logger   *slog.Logger

	httpServer *http.Server
}

func NewServer(cfg common.ServerConfig, proc *pipeline.Processor, jobsRepo repository.ScanJobsRepository, exporter *export.Service, db *repository.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	return &Server{
		cfg:      cfg,
		proc:     proc,
		jobsRepo: jobsRepo,
		exporter: exporter,
		db:       db,
		static:   http.FileServer(http.Dir("web/static")),
		logger:   logger,
	}
}

// Handler builds the route table and wraps it with the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload_image/", s.handleUploadImage)
	mux.HandleFunc("POST /upload_image", s.handleUploadImage)
	mux.HandleFunc("POST /upload_multiple_images/", s.handleUploadMultiple)
	mux.HandleFunc("POST /upload_multiple_images", s.handleUploadMultiple)

	mux.HandleFunc("GET /scans", s.handleListScans)
	mux.HandleFunc("GET /scans/{id}", s.handleGetScan)
	mux.HandleFunc("GET /export.xlsx", s.handleExportXLSX)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Upload UI and its assets
	mux.Handle("GET /", s.static)

	return s.withCORS(s.withLogging(mux))
}

// Start runs the HTTP server until ListenAndServe returns.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", "addr", s.cfg.HTTPAddr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context(), 2*time.Second); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// withLogging attaches a request id to the context and logs one line per
// request with the status and elapsed time.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := common.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", requestID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// withCORS answers preflight and marks every response as cross-origin
// accessible, matching the permissive policy of the upload UI.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
