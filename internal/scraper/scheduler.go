package scraper

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the orchestrator on a fixed interval until the context
// is cancelled. A failed cycle is logged and the next tick proceeds.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       *slog.Logger
}

func NewScheduler(o *Orchestrator, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: o,
		interval:     interval,
		logger:       logger.With("component", "scheduler"),
	}
}

// Run executes one cycle immediately, then one per interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.cycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	start := time.Now()
	result, err := s.orchestrator.Scrape(ctx)
	if err != nil {
		s.logger.Error("scrape cycle failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scrape cycle finished",
		"run_id", result.RunID, "found", result.Found, "duration", time.Since(start))
}
