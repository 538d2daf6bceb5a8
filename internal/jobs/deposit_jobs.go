package jobs

import (
	"context"
	"time"

	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/repository"
	"gearshare-backend/internal/service"
)

// AuthorizeDepositsJob places deposit holds for PAID bookings whose start day
// has arrived. Bookings with a recorded attempt are excluded here; their
// retries run through the task queue.
type AuthorizeDepositsJob struct {
	store    repository.Store
	bookings *service.BookingService
	now      func() time.Time
}

func NewAuthorizeDepositsJob(store repository.Store, bookings *service.BookingService) *AuthorizeDepositsJob {
	return &AuthorizeDepositsJob{store: store, bookings: bookings, now: time.Now}
}

func (j *AuthorizeDepositsJob) Name() string { return "authorize-deposits" }

func (j *AuthorizeDepositsJob) Run(ctx context.Context) error {
	today := j.now().UTC().Truncate(24 * time.Hour)
	due, err := j.store.Bookings().ListNeedingDepositAuth(ctx, today)
	if err != nil {
		return err
	}

	var failed int
	for _, b := range due {
		if err := j.bookings.AuthorizeDeposit(ctx, b.ID); err != nil {
			failed++
			logger.Error("deposit authorization sweep failed for booking", "booking_id", b.ID, "error", err)
		}
	}
	logger.Info("deposit authorization sweep done", "candidates", len(due), "failed", failed)
	return nil
}

// ReleaseDepositsJob releases holds on completed bookings whose dispute
// window closed, skipping anything a dispute keeps locked.
type ReleaseDepositsJob struct {
	store    repository.Store
	bookings *service.BookingService
	now      func() time.Time
}

func NewReleaseDepositsJob(store repository.Store, bookings *service.BookingService) *ReleaseDepositsJob {
	return &ReleaseDepositsJob{store: store, bookings: bookings, now: time.Now}
}

func (j *ReleaseDepositsJob) Name() string { return "release-deposits" }

func (j *ReleaseDepositsJob) Run(ctx context.Context) error {
	due, err := j.store.Bookings().ListDepositReleasable(ctx, j.now())
	if err != nil {
		return err
	}

	var failed int
	for _, b := range due {
		if err := j.bookings.ReleaseDeposit(ctx, b.ID); err != nil {
			failed++
			logger.Error("deposit release failed for booking", "booking_id", b.ID, "error", err)
		}
	}
	logger.Info("deposit release sweep done", "candidates", len(due), "failed", failed)
	return nil
}
