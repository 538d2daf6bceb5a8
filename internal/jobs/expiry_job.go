package jobs

import (
	"context"
	"time"

	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/repository"
	"gearshare-backend/internal/service"
)

// ExpireStaleBookingsJob cancels REQUESTED and CONFIRMED bookings whose start
// date passed without payment. No money has moved for these, so the cancel is
// bookkeeping only.
type ExpireStaleBookingsJob struct {
	store    repository.Store
	bookings *service.BookingService
	now      func() time.Time
}

func NewExpireStaleBookingsJob(store repository.Store, bookings *service.BookingService) *ExpireStaleBookingsJob {
	return &ExpireStaleBookingsJob{store: store, bookings: bookings, now: time.Now}
}

func (j *ExpireStaleBookingsJob) Name() string { return "expire-stale-bookings" }

func (j *ExpireStaleBookingsJob) Run(ctx context.Context) error {
	today := j.now().UTC().Truncate(24 * time.Hour)
	stale, err := j.store.Bookings().ListStalePrePayment(ctx, today)
	if err != nil {
		return err
	}

	var failed int
	for _, b := range stale {
		err := j.bookings.Cancel(ctx, b.ID, domain.CancelActorSystem, 0, "expired_unpaid")
		if err != nil {
			failed++
			logger.Error("failed to expire booking", "booking_id", b.ID, "error", err)
		}
	}
	logger.Info("stale booking sweep done", "candidates", len(stale), "failed", failed)
	return nil
}
