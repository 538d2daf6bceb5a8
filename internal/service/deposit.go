package service

import (
	"context"
	"fmt"
	"time"

	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/payments"
	"gearshare-backend/internal/repository"
	"gearshare-backend/internal/taskqueue"
)

// AuthorizeDeposit places the deposit hold for a PAID booking on its start
// day. The attempt counter is persisted before the gateway call so a crash
// mid-call still produces a distinct key on the next run. A decline on a
// non-final attempt schedules a delayed retry; a decline on the final attempt
// triggers the deposit-failure settlement and cancels the booking.
func (s *BookingService) AuthorizeDeposit(ctx context.Context, bookingID int64) error {
	var (
		b       *domain.Booking
		attempt int32
		skip    bool
		zeroDep bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		b, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != domain.BookingStatusPaid || b.DepositAuthorizedAt != nil {
			skip = true
			return nil
		}
		now := s.now()
		if b.DepositCents == 0 {
			b.DepositAuthorizedAt = &now
			zeroDep = true
			return tx.Bookings().Update(ctx, b)
		}
		if int(b.DepositAttempts) >= s.cfg.Marketplace.DepositMaxAttempts {
			// Final attempt already failed; the failure settlement ran.
			skip = true
			return nil
		}
		b.DepositAttempts++
		attempt = b.DepositAttempts
		return tx.Bookings().Update(ctx, b)
	})
	if err != nil || skip {
		return err
	}
	if zeroDep {
		s.transferInitialPayout(ctx, b)
		return nil
	}

	key := payments.DepositAuthKey(bookingID, attempt, b.DepositCents)
	logger.GatewayCall("authorize_hold", key, "booking_id", bookingID, "attempt", attempt, "amount_cents", b.DepositCents)
	holdRef, err := s.gateway.AuthorizeHold(ctx, b.DepositCents, b.CustomerRef, b.PaymentMethodRef, key)
	logger.GatewayResult("authorize_hold", err, "booking_id", bookingID)

	if err == nil {
		err := s.store.WithTx(ctx, func(tx repository.Store) error {
			locked, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
			if err != nil {
				return err
			}
			if locked.Status != domain.BookingStatusPaid || locked.DepositAuthorizedAt != nil {
				return nil
			}
			now := s.now()
			locked.DepositHoldRef = holdRef
			locked.DepositAuthorizedAt = &now
			return tx.Bookings().Update(ctx, locked)
		})
		if err != nil {
			return err
		}
		s.transferInitialPayout(ctx, b)
		return nil
	}

	switch payments.ClassOf(err) {
	case payments.ErrorClassTransient:
		// The attempt may or may not have reached the provider. Roll the
		// counter back and retry with the same key later.
		if rbErr := s.rollbackDepositAttempt(ctx, bookingID); rbErr != nil {
			return rbErr
		}
		s.enqueueDepositRetry(bookingID)
		logger.Warn("deposit authorization hit transient error, retry scheduled", "booking_id", bookingID, "error", err)
		return nil

	case payments.ErrorClassConfig:
		if rbErr := s.rollbackDepositAttempt(ctx, bookingID); rbErr != nil {
			return rbErr
		}
		return fmt.Errorf("deposit authorization for booking %d needs operator attention: %w", bookingID, err)
	}

	// Permanent decline (insufficient funds or similar).
	if int(attempt) < s.cfg.Marketplace.DepositMaxAttempts {
		s.enqueueDepositRetry(bookingID)
		logger.Warn("deposit authorization declined, retry scheduled",
			"booking_id", bookingID, "attempt", attempt, "error", err)
		s.notifier.NotifyBooking(ctx, b.RenterID, EventDepositRetry,
			"Deposit authorization failed",
			"We could not authorize your deposit. We will retry shortly; please check your payment method.", bookingID)
		return nil
	}

	return s.settleDepositFailure(ctx, b)
}

// transferInitialPayout moves the owner's rental share once the deposit is
// secured (or no deposit was required). Failures are logged, not returned:
// the payout is diff-based, so the next settlement touchpoint catches up.
func (s *BookingService) transferInitialPayout(ctx context.Context, b *domain.Booking) {
	if b.Totals == nil {
		return
	}
	if err := s.settle.TransferOwnerPayout(ctx, b, b.Totals.OwnerPayoutCents, "booking"); err != nil {
		logger.Warn("owner payout transfer failed after deposit authorization",
			"booking_id", b.ID, "error", err)
	}
}

func (s *BookingService) rollbackDepositAttempt(ctx context.Context, bookingID int64) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if locked.DepositAttempts > 0 {
			locked.DepositAttempts--
		}
		return tx.Bookings().Update(ctx, locked)
	})
}

func (s *BookingService) enqueueDepositRetry(bookingID int64) {
	delay := time.Duration(s.cfg.Marketplace.DepositRetryDelayMinutes) * time.Minute
	s.queue.Enqueue(TaskRetryDepositAuth, taskqueue.Payload{
		"booking_id": fmt.Sprintf("%d", bookingID),
	}, delay)
}

func (s *BookingService) handleDepositRetryTask(ctx context.Context, payload taskqueue.Payload) error {
	bookingID := payload.Int64("booking_id")
	if bookingID == 0 {
		return fmt.Errorf("deposit retry task without booking_id")
	}
	return s.AuthorizeDeposit(ctx, bookingID)
}

// settleDepositFailure applies the configured split of the original rental
// charge and cancels the booking: part back to the renter, part to the owner
// for the lost rental, the remainder to the platform.
func (s *BookingService) settleDepositFailure(ctx context.Context, b *domain.Booking) error {
	st := s.settle.ComputeDepositFailure(b)
	err := s.settle.Apply(ctx, st, func(locked *domain.Booking) {
		if locked.Status.IsTerminal() {
			return
		}
		locked.Status = domain.BookingStatusCanceled
		locked.CanceledBy = domain.CancelActorSystem
		locked.CanceledReason = "deposit_authorization_failed"
		locked.AutoCanceled = true
	})
	if err != nil {
		return err
	}

	logger.Warn("deposit authorization failed permanently, booking canceled",
		"booking_id", b.ID,
		"refund_cents", st.RefundCents,
		"owner_cents", st.OwnerTransferCents,
		"platform_cents", st.PlatformCents)
	s.notifier.NotifyBooking(ctx, b.RenterID, EventDepositFailed,
		"Booking canceled", "Your deposit could not be authorized; the booking was canceled and you were partially refunded.", b.ID)
	s.notifier.NotifyBooking(ctx, b.OwnerID, EventDepositFailed,
		"Booking canceled", "The renter's deposit could not be authorized; you receive a partial payout for the lost booking.", b.ID)
	return nil
}

// ReleaseDeposit cancels the hold once the booking is complete, the dispute
// window has closed, and no dispute keeps the deposit locked.
func (s *BookingService) ReleaseDeposit(ctx context.Context, bookingID int64) error {
	b, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != domain.BookingStatusCompleted || !b.HasDepositHold() {
		return nil
	}
	if b.DepositLocked {
		logger.Debug("deposit release deferred, locked by dispute", "booking_id", bookingID)
		return nil
	}
	if b.DepositReleaseScheduledAt == nil || s.now().Before(*b.DepositReleaseScheduledAt) {
		return nil
	}

	st := Settlement{BookingID: bookingID, Scope: "booking", ReleaseDeposit: true}
	if err := s.settle.Apply(ctx, st, nil); err != nil {
		return err
	}

	logger.Info("deposit released", "booking_id", bookingID, "amount_cents", b.DepositCents)
	s.notifier.NotifyBooking(ctx, b.RenterID, EventDepositReleased,
		"Deposit released", "Your security deposit hold was released.", bookingID)
	return nil
}
