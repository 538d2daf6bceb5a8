package service

import (
	"context"
	"fmt"
	"time"

	"gearshare-backend/internal/config"
	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/money"
	"gearshare-backend/internal/payments"
	"gearshare-backend/internal/repository"
)

// Settlement is the money plan for closing out a booking or resolving a
// dispute: which legs move, in minor units. A zero leg is skipped. Scope keys
// the idempotency of every gateway call and ledger entry derived from it, so
// applying the same settlement twice moves nothing twice.
type Settlement struct {
	BookingID int64
	Scope     string

	// RefundCents is returned to the renter against the rental charge.
	RefundCents int64
	// OwnerTransferCents is paid out to the owner's connected account.
	OwnerTransferCents int64
	// PlatformCents is the platform's retained share; ledger entry only, the
	// funds already sit with the platform.
	PlatformCents int64
	// DepositCaptureCents is captured from the deposit hold and forwarded to
	// the owner. The uncaptured remainder of the hold is released.
	DepositCaptureCents int64
	// ReleaseDeposit cancels the hold when nothing is captured from it.
	ReleaseDeposit bool
}

// SettlementService turns settlement plans into gateway calls and ledger
// entries. Gateway calls run outside row locks; all database effects apply in
// one transaction afterwards, each ledger write guarded by a
// (kind, external_ref) existence check.
type SettlementService struct {
	store   repository.Store
	gateway payments.Gateway
	cfg     *config.Config
	now     func() time.Time
}

func NewSettlementService(store repository.Store, gateway payments.Gateway, cfg *config.Config) *SettlementService {
	return &SettlementService{store: store, gateway: gateway, cfg: cfg, now: time.Now}
}

// ComputeCancellation builds the plan for canceling a booking at time `at`.
// Nothing has moved before payment, so pre-payment cancellations carry no
// legs. After payment:
//   - renter cancels before the rental starts: the subtotal comes back, the
//     platform keeps the renter fee;
//   - renter cancels after the start: no refund, the owner payout settles;
//   - owner or system cancels: the full charge comes back.
//
// Any outstanding deposit hold is always released on cancellation.
func (s *SettlementService) ComputeCancellation(b *domain.Booking, actor domain.CancelActor, at time.Time) Settlement {
	st := Settlement{BookingID: b.ID, Scope: "booking", ReleaseDeposit: true}
	if b.Status != domain.BookingStatusPaid || b.Totals == nil || b.ChargeRef == "" {
		return st
	}

	t := b.Totals
	switch {
	case actor == domain.CancelActorRenter && at.Before(b.StartDate) && b.PickupConfirmedAt == nil:
		st.RefundCents = t.RentalSubtotalCents
		st.PlatformCents = t.RenterFeeCents
	case actor == domain.CancelActorRenter:
		st.OwnerTransferCents = t.OwnerPayoutCents
		st.PlatformCents = t.PlatformFeeCents
	default:
		st.RefundCents = t.TotalChargeCents
	}
	return st
}

// ComputeDepositFailure builds the plan applied when the deposit cannot be
// authorized after the final attempt. The original rental charge is split:
// a partial refund to the renter, a partial payout to the owner for the lost
// booking, and the remainder to the platform.
func (s *SettlementService) ComputeDepositFailure(b *domain.Booking) Settlement {
	st := Settlement{BookingID: b.ID, Scope: "deposit-failure", ReleaseDeposit: true}
	if b.Totals == nil || b.ChargeRef == "" {
		return st
	}

	m := s.cfg.Marketplace
	platformPct := 100 - m.FailureRefundPercent - m.FailureOwnerPercent
	legs := money.Split(b.Totals.TotalChargeCents, m.FailureRefundPercent, m.FailureOwnerPercent, platformPct)
	st.RefundCents = legs[0]
	st.OwnerTransferCents = legs[1]
	st.PlatformCents = legs[2]
	return st
}

// ComputeResolution builds the plan for an operator dispute resolution. The
// refund is capped at the original charge and the capture at the deposit
// actually held.
func (s *SettlementService) ComputeResolution(d *domain.DisputeCase, b *domain.Booking) Settlement {
	st := Settlement{BookingID: b.ID, Scope: payments.DisputeScope(d.ID), ReleaseDeposit: true}

	refund := d.RefundAmountCents
	if b.Totals != nil && refund > b.Totals.TotalChargeCents {
		refund = b.Totals.TotalChargeCents
	}
	if b.ChargeRef == "" {
		refund = 0
	}
	st.RefundCents = refund

	capture := d.DepositCaptureCents
	if capture > b.DepositCents {
		capture = b.DepositCents
	}
	if !b.HasDepositHold() {
		capture = 0
	}
	st.DepositCaptureCents = capture
	return st
}

// Apply executes the settlement. Gateway phase first, then one transaction
// that re-locks the booking, writes the ledger entries that are not already
// present, updates the deposit bookkeeping and runs mutate on the locked row.
func (s *SettlementService) Apply(ctx context.Context, st Settlement, mutate func(b *domain.Booking)) error {
	b, err := s.store.Bookings().GetByID(ctx, st.BookingID)
	if err != nil {
		return fmt.Errorf("load booking %d: %w", st.BookingID, err)
	}

	refunded := st.RefundCents > 0 && b.ChargeRef != ""
	if refunded {
		key := payments.RefundKey(b.ID, st.Scope, st.RefundCents)
		logger.GatewayCall("refund", key, "booking_id", b.ID, "amount_cents", st.RefundCents)
		_, err := s.gateway.Refund(ctx, b.ChargeRef, st.RefundCents, key)
		logger.GatewayResult("refund", err, "booking_id", b.ID)
		if err != nil {
			return fmt.Errorf("refund booking %d: %w", b.ID, err)
		}
	}

	captured := st.DepositCaptureCents > 0 && b.HasDepositHold()
	if captured {
		key := payments.DepositCaptureKey(b.ID, st.Scope, st.DepositCaptureCents)
		logger.GatewayCall("capture_hold", key, "booking_id", b.ID, "amount_cents", st.DepositCaptureCents)
		_, err := s.gateway.CaptureHold(ctx, b.DepositHoldRef, st.DepositCaptureCents, key)
		logger.GatewayResult("capture_hold", err, "booking_id", b.ID)
		if err != nil {
			return fmt.Errorf("capture deposit for booking %d: %w", b.ID, err)
		}

		// The captured amount is the owner's damage award.
		tkey := payments.TransferKey(b.ID, st.Scope, st.DepositCaptureCents)
		logger.GatewayCall("transfer", tkey, "booking_id", b.ID, "amount_cents", st.DepositCaptureCents)
		_, err = s.gateway.Transfer(ctx, payments.OwnerDestination(b.OwnerID), st.DepositCaptureCents, tkey)
		logger.GatewayResult("transfer", err, "booking_id", b.ID)
		if err != nil {
			return fmt.Errorf("transfer deposit capture for booking %d: %w", b.ID, err)
		}
	}

	// Capturing part of a hold releases the remainder on the provider side;
	// an explicit cancel is only needed when nothing was captured.
	released := st.ReleaseDeposit && !captured && b.HasDepositHold()
	if released {
		key := payments.DepositReleaseKey(b.ID)
		logger.GatewayCall("cancel_hold", key, "booking_id", b.ID)
		err := s.gateway.CancelHold(ctx, b.DepositHoldRef, key)
		logger.GatewayResult("cancel_hold", err, "booking_id", b.ID)
		if err != nil {
			return fmt.Errorf("release deposit for booking %d: %w", b.ID, err)
		}
	}

	if st.OwnerTransferCents > 0 {
		key := payments.TransferKey(b.ID, st.Scope, st.OwnerTransferCents)
		logger.GatewayCall("transfer", key, "booking_id", b.ID, "amount_cents", st.OwnerTransferCents)
		_, err := s.gateway.Transfer(ctx, payments.OwnerDestination(b.OwnerID), st.OwnerTransferCents, key)
		logger.GatewayResult("transfer", err, "booking_id", b.ID)
		if err != nil {
			return fmt.Errorf("transfer owner share for booking %d: %w", b.ID, err)
		}
	}

	currency := s.cfg.Payments.Currency
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Bookings().GetByIDForUpdate(ctx, st.BookingID)
		if err != nil {
			return err
		}

		if refunded {
			if err := logOnce(ctx, tx, &domain.Transaction{
				UserID:      locked.RenterID,
				BookingID:   &locked.ID,
				Kind:        domain.TransactionKindRefund,
				AmountCents: st.RefundCents,
				Currency:    currency,
				ExternalRef: payments.RefundKey(locked.ID, st.Scope, st.RefundCents),
				Description: fmt.Sprintf("refund (%s)", st.Scope),
			}); err != nil {
				return err
			}
		}
		if captured {
			if err := logOnce(ctx, tx, &domain.Transaction{
				UserID:      locked.RenterID,
				BookingID:   &locked.ID,
				Kind:        domain.TransactionKindDepositCapture,
				AmountCents: st.DepositCaptureCents,
				Currency:    currency,
				ExternalRef: payments.DepositCaptureKey(locked.ID, st.Scope, st.DepositCaptureCents),
				Description: fmt.Sprintf("deposit capture (%s)", st.Scope),
			}); err != nil {
				return err
			}
			if err := logOnce(ctx, tx, &domain.Transaction{
				UserID:      locked.OwnerID,
				BookingID:   &locked.ID,
				Kind:        domain.TransactionKindOwnerEarning,
				AmountCents: st.DepositCaptureCents,
				Currency:    currency,
				ExternalRef: payments.TransferKey(locked.ID, st.Scope, st.DepositCaptureCents),
				Description: fmt.Sprintf("deposit capture award (%s)", st.Scope),
			}); err != nil {
				return err
			}
		}
		if st.OwnerTransferCents > 0 {
			if err := logOnce(ctx, tx, &domain.Transaction{
				UserID:      locked.OwnerID,
				BookingID:   &locked.ID,
				Kind:        domain.TransactionKindOwnerEarning,
				AmountCents: st.OwnerTransferCents,
				Currency:    currency,
				ExternalRef: payments.TransferKey(locked.ID, st.Scope, st.OwnerTransferCents),
				Description: fmt.Sprintf("owner share (%s)", st.Scope),
			}); err != nil {
				return err
			}
		}
		if st.PlatformCents > 0 {
			if err := logOnce(ctx, tx, &domain.Transaction{
				UserID:      0,
				BookingID:   &locked.ID,
				Kind:        domain.TransactionKindPlatformFee,
				AmountCents: st.PlatformCents,
				Currency:    currency,
				ExternalRef: fmt.Sprintf("bk-%d-platform-%s-%d", locked.ID, st.Scope, st.PlatformCents),
				Description: fmt.Sprintf("platform share (%s)", st.Scope),
			}); err != nil {
				return err
			}
		}

		if captured || released {
			if locked.DepositReleasedAt == nil {
				now := s.now()
				locked.DepositReleasedAt = &now
			}
			if remainder := locked.DepositCents - st.DepositCaptureCents; remainder > 0 {
				if err := logOnce(ctx, tx, &domain.Transaction{
					UserID:      locked.RenterID,
					BookingID:   &locked.ID,
					Kind:        domain.TransactionKindDepositRelease,
					AmountCents: remainder,
					Currency:    currency,
					ExternalRef: payments.DepositReleaseKey(locked.ID),
					Description: "deposit hold released",
				}); err != nil {
					return err
				}
			}
		}

		if mutate != nil {
			mutate(locked)
		}
		return tx.Bookings().Update(ctx, locked)
	})
}

// TransferOwnerPayout brings the owner's logged earnings for the booking up
// to target by transferring the difference. Already-logged amounts are found
// by summing the ledger, so a partial earlier settlement only tops up.
func (s *SettlementService) TransferOwnerPayout(ctx context.Context, b *domain.Booking, targetCents int64, scope string) error {
	sum, err := s.store.Ledger().SumByKindAndBooking(ctx, domain.TransactionKindOwnerEarning, b.ID)
	if err != nil {
		return fmt.Errorf("sum owner earnings for booking %d: %w", b.ID, err)
	}
	delta := targetCents - sum
	if delta <= 0 {
		return nil
	}

	key := payments.TransferKey(b.ID, scope, delta)
	logger.GatewayCall("transfer", key, "booking_id", b.ID, "amount_cents", delta)
	_, err = s.gateway.Transfer(ctx, payments.OwnerDestination(b.OwnerID), delta, key)
	logger.GatewayResult("transfer", err, "booking_id", b.ID)
	if err != nil {
		return fmt.Errorf("transfer owner payout for booking %d: %w", b.ID, err)
	}

	return s.store.WithTx(ctx, func(tx repository.Store) error {
		return logOnce(ctx, tx, &domain.Transaction{
			UserID:      b.OwnerID,
			BookingID:   &b.ID,
			Kind:        domain.TransactionKindOwnerEarning,
			AmountCents: delta,
			Currency:    s.cfg.Payments.Currency,
			ExternalRef: key,
			Description: fmt.Sprintf("owner payout (%s)", scope),
		})
	})
}

// logOnce writes a ledger entry unless one with the same (kind, external_ref)
// already exists.
func logOnce(ctx context.Context, tx repository.Store, t *domain.Transaction) error {
	exists, err := tx.Ledger().ExistsByKindAndRef(ctx, t.Kind, t.ExternalRef)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("ledger entry already present", "kind", t.Kind, "external_ref", t.ExternalRef)
		return nil
	}
	return tx.Ledger().CreateTransaction(ctx, t)
}
