// Package jobs holds the periodic sweeps. Each job lists its due rows and
// hands them to the services one at a time; a failing row is logged and
// skipped so one bad booking cannot stall the sweep.
package jobs

import (
	"context"
	"time"

	"gearshare-backend/internal/logger"
)

// Job is one runnable sweep.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner holds the registered jobs for the scheduler and the run-once CLI.
type Runner struct {
	jobs []Job
}

func NewRunner(jobs ...Job) *Runner {
	return &Runner{jobs: jobs}
}

func (r *Runner) Jobs() []Job {
	return r.jobs
}

// Get returns the job with the given name, or nil.
func (r *Runner) Get(name string) Job {
	for _, j := range r.jobs {
		if j.Name() == name {
			return j
		}
	}
	return nil
}

// RunWithRecovery executes a job, logging duration and recovering panics so a
// broken job never takes the scheduler down.
func RunWithRecovery(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "job", job.Name(), "panic", r)
		}
	}()

	start := time.Now()
	logger.Info("job started", "job", job.Name())
	if err := job.Run(ctx); err != nil {
		logger.Error("job failed", "job", job.Name(), "duration", time.Since(start), "error", err)
		return
	}
	logger.Info("job finished", "job", job.Name(), "duration", time.Since(start))
}
