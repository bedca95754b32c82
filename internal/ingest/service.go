package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/osoji/rxscan/constants"
	"github.com/osoji/rxscan/internal/async"
	"github.com/osoji/rxscan/internal/repository"
)

// Service turns watch-folder events into queued scan jobs.
type Service struct {
	Ingestor Ingestor
	JobsRepo repository.ScanJobsRepository
	Queue    async.Queue
	Logger   *slog.Logger
}

func NewService(ing Ingestor, jobs repository.ScanJobsRepository, queue async.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Ingestor: ing, JobsRepo: jobs, Queue: queue, Logger: logger}
}

// Watch consumes watcher events until ctx is done. It blocks; run it on
// its own goroutine.
func (s *Service) Watch(ctx context.Context, cfg WatchConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = s.Logger
	}
	evCh, errCh, err := StartWatcher(ctx, cfg)
	if err != nil {
		return err
	}
	s.Logger.Info("watching for prescriptions", "roots", strings.Join(cfg.Roots, ","), "initial_scan", cfg.InitialScan)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			s.Logger.Error("watch error", "error", err)
		case path, ok := <-evCh:
			if !ok {
				return nil
			}
			s.handle(ctx, path, cfg.RescanDuplicates)
		}
	}
}

func (s *Service) handle(ctx context.Context, path string, rescanDuplicates bool) {
	res, err := s.Ingestor.IngestPath(ctx, path)
	if err != nil {
		s.Logger.Warn("ingest failed", "path", path, "error", err)
		return
	}
	if res.Deduplicated && !rescanDuplicates {
		s.Logger.Debug("already known, skipping scan", "path", path, "file_id", res.FileID)
		return
	}

	job, err := s.JobsRepo.Start(ctx, res.FileID, constants.FormatForExt(res.FileExt), constants.ScanStatusQueued)
	if err != nil {
		s.Logger.Error("failed to queue scan", "file_id", res.FileID, "error", err)
		return
	}
	_ = s.Queue.Enqueue(ctx, async.Job{
		JobID:       job.ID,
		FileID:      res.FileID,
		Force:       rescanDuplicates && res.Deduplicated,
		SubmittedAt: time.Now().UTC(),
		TraceID:     job.ID.String(),
	})
}
