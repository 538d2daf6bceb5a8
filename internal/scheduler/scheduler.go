// Package scheduler wires the sweeps onto cron schedules from config.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"gearshare-backend/internal/config"
	"gearshare-backend/internal/jobs"
	"gearshare-backend/internal/logger"
)

type Scheduler struct {
	cron *cron.Cron
}

// New registers every job on its configured schedule. Specs use six fields
// (seconds precision) in UTC.
func New(cfg config.SchedulerConfig, runner *jobs.Runner) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))

	specs := map[string]string{
		"expire-stale-bookings":   cfg.ExpireStaleBookings,
		"authorize-deposits":      cfg.AuthorizeDeposits,
		"release-deposits":        cfg.ReleaseDeposits,
		"sweep-rebuttal-timeouts": cfg.SweepRebuttalTimeouts,
	}

	for name, spec := range specs {
		job := runner.Get(name)
		if job == nil {
			return nil, fmt.Errorf("no job registered under %q", name)
		}
		j := job
		if _, err := c.AddFunc(spec, func() {
			jobs.RunWithRecovery(context.Background(), j)
		}); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
		}
		logger.Info("job scheduled", "job", name, "spec", spec)
	}

	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("scheduler stopped")
}
