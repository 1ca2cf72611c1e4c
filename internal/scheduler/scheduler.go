package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"bizsync/internal/domain"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	PerformSync(ctx context.Context, scope domain.Category) (*domain.SyncReport, error)
}

type Config struct {
	Schedule   string
	Timeout    time.Duration
	RunOnStart bool
}

// Scheduler runs full sync passes on a cron schedule. A tick that lands
// while a pass is still running is skipped.
type Scheduler struct {
	syncer Syncer
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler(syncer Syncer, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer: syncer,
		cfg:    cfg,
		cron:   cron.New(),
		logger: logger.With("component", "scheduler"),
	}
}

// Start blocks until ctx is done and waits for a running pass to return.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.runSync(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.cfg.Schedule, err)
	}

	s.logger.Info("scheduler started", "schedule", s.cfg.Schedule, "timeout", s.cfg.Timeout)

	if s.cfg.RunOnStart {
		s.runSync(ctx)
	}

	s.cron.Start()
	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	syncCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		syncCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	report, err := s.syncer.PerformSync(syncCtx, domain.CategoryAll)
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		s.logger.Info("sync already running, skipping scheduled run")
	case errors.Is(err, domain.ErrAuthRequired), errors.Is(err, domain.ErrSessionExpired):
		s.logger.Warn("sync needs a signed-in session", "error", err)
	case errors.Is(err, domain.ErrCancelled):
		s.logger.Warn("sync cancelled", "error", err)
	case err != nil:
		s.logger.Error("sync failed", "error", err)
	case len(report.Failed()) > 0:
		s.logger.Warn("sync finished with failed categories", "failed", len(report.Failed()))
	}
}
