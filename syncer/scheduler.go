package syncer

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler invokes Run on a fixed cadence. Recurrence lives here in
// the hosting process; the orchestrator itself knows nothing about
// time. Run errors are logged and otherwise dropped, because the next
// tick is the retry.
type Scheduler struct {
	syncer     *Syncer
	interval   time.Duration
	runAtStart bool
	logger     *slog.Logger
}

func NewScheduler(s *Syncer, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		syncer:     s,
		interval:   cfg.Interval,
		runAtStart: cfg.RunAtStart,
		logger:     logger,
	}
}

// Run blocks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runAtStart {
		s.once(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.once(ctx)
		}
	}
}

func (s *Scheduler) once(ctx context.Context) {
	if err := s.syncer.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "audit sync run failed", "error", err)
	}
}
