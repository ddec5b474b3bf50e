package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers MonthlyPropagation on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	job    *MonthlyPropagation
	now    func() time.Time
	logger *slog.Logger
	ctx    context.Context
}

// NewScheduler registers job under a standard five-field cron expression evaluated in loc.
func NewScheduler(spec string, loc *time.Location, job *MonthlyPropagation, now func() time.Time, logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("monthly propagation job is nil")
	}
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		job:    job,
		now:    now,
		logger: logger,
		ctx:    context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid propagation schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	if _, err := s.job.RunOnce(s.ctx, s.now()); err != nil {
		s.logger.ErrorContext(s.ctx, "scheduled propagation failed", "error", err)
	}
}

// Next reports when the job fires next. It is zero until Start is called.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Start begins scheduling; runs use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.InfoContext(ctx, "propagation scheduler started", "next_run", s.Next())
}

// Stop prevents new runs and waits for a running one or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
