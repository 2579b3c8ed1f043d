package distress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JaimeStill/vigil/internal/metrics"
	"github.com/JaimeStill/vigil/pkg/lifecycle"
)

// Releaser moves held flags whose hold window has elapsed back to pending.
type Releaser interface {
	ReleaseHeld(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs a Releaser on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	releaser Releaser
	schedule string
	now      func() time.Time
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler for the given cron expression
// (standard five-field syntax or descriptors such as "@every 15m").
func NewScheduler(releaser Releaser, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		releaser: releaser,
		schedule: schedule,
		now:      time.Now,
		logger:   logger.With("system", "release"),
	}
}

// Start registers the release job and ties the cron runner to lc.
func (s *Scheduler) Start(lc *lifecycle.Coordinator) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Run(lc.Context()) }); err != nil {
		return fmt.Errorf("schedule release job %q: %w", s.schedule, err)
	}

	s.logger.Info("starting release scheduler", "schedule", s.schedule)

	lc.OnStartup(func() {
		s.cron.Start()
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		s.logger.Info("stopping release scheduler")
		<-s.cron.Stop().Done()
		s.logger.Info("release scheduler stopped")
	})

	return nil
}

// Run performs one release pass and returns the number of flags released.
func (s *Scheduler) Run(ctx context.Context) int {
	n, err := s.releaser.ReleaseHeld(ctx, s.now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "release pass failed", "error", err)
		return 0
	}

	if n > 0 {
		metrics.HeldReleased.Add(float64(n))
		s.logger.InfoContext(ctx, "held flags released", "count", n)
	}
	return n
}
