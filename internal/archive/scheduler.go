// Package archive runs the periodic cold-storage export of old ledger events.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/mevrebels/internal/domain"
)

// Scheduler triggers an archive run on a standard 5-field cron schedule,
// e.g. "0 3 1 * *" for 03:00 UTC on the first of every month.
type Scheduler struct {
	archiver      domain.EventArchiver
	retentionDays int
	expr          string
	cron          *cron.Cron
	now           func() time.Time
	logger        *slog.Logger
}

// NewScheduler validates the cron expression and returns a Scheduler.
func NewScheduler(archiver domain.EventArchiver, expr string, retentionDays int, logger *slog.Logger) (*Scheduler, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("archive: retention_days must be at least 1, got %d", retentionDays)
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("archive: parse cron %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		archiver:      archiver,
		retentionDays: retentionDays,
		expr:          expr,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		now:    time.Now,
		logger: logger.With(slog.String("component", "archive_scheduler")),
	}, nil
}

// Cutoff returns the instant before which events are archived.
func (s *Scheduler) Cutoff() time.Time {
	return s.now().UTC().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)
}

// RunOnce performs a single archive run and returns the number of events
// archived.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.Cutoff()
	s.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", s.retentionDays),
	)
	start := time.Now()
	n, err := s.archiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("archive: events before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("events", n),
		slog.Duration("elapsed", time.Since(start)),
	)
	return n, nil
}

// Run registers the archive job and blocks until ctx is cancelled. A trigger
// that fires while the previous run is still going is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.expr, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("archive: register job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "archive scheduler started", slog.String("cron", s.expr))
	if entries := s.cron.Entries(); len(entries) > 0 {
		s.logger.InfoContext(ctx, "next archive run", slog.Time("at", entries[0].Next))
	}

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("archive scheduler stopped")
	return nil
}
