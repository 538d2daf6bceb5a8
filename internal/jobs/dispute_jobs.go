package jobs

import (
	"context"
	"time"

	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/repository"
	"gearshare-backend/internal/service"
)

// SweepRebuttalTimeoutsJob advances disputes whose rebuttal deadline passed.
type SweepRebuttalTimeoutsJob struct {
	store    repository.Store
	disputes *service.DisputeService
	now      func() time.Time
}

func NewSweepRebuttalTimeoutsJob(store repository.Store, disputes *service.DisputeService) *SweepRebuttalTimeoutsJob {
	return &SweepRebuttalTimeoutsJob{store: store, disputes: disputes, now: time.Now}
}

func (j *SweepRebuttalTimeoutsJob) Name() string { return "sweep-rebuttal-timeouts" }

func (j *SweepRebuttalTimeoutsJob) Run(ctx context.Context) error {
	overdue, err := j.store.Disputes().ListRebuttalOverdue(ctx, j.now())
	if err != nil {
		return err
	}

	var failed int
	for _, d := range overdue {
		if err := j.disputes.HandleRebuttalTimeout(ctx, d.ID); err != nil {
			failed++
			logger.Error("rebuttal timeout handling failed", "dispute_id", d.ID, "error", err)
		}
	}
	logger.Info("rebuttal timeout sweep done", "candidates", len(overdue), "failed", failed)
	return nil
}
