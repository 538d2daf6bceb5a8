package service

import (
	"context"
	"fmt"
	"time"

	"gearshare-backend/internal/config"
	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/payments"
	"gearshare-backend/internal/pricing"
	"gearshare-backend/internal/repository"
	"gearshare-backend/internal/taskqueue"
)

// TaskRetryDepositAuth is the task queue kind for delayed deposit retries.
const TaskRetryDepositAuth = "deposit-auth-retry"

type BookingService struct {
	store    repository.Store
	gateway  payments.Gateway
	settle   *SettlementService
	queue    *taskqueue.Queue
	notifier *Notifier
	cfg      *config.Config
	now      func() time.Time
}

func NewBookingService(store repository.Store, gateway payments.Gateway, settle *SettlementService, queue *taskqueue.Queue, notifier *Notifier, cfg *config.Config) *BookingService {
	return &BookingService{
		store:    store,
		gateway:  gateway,
		settle:   settle,
		queue:    queue,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

type RequestBookingInput struct {
	ListingID        int64
	OwnerID          int64
	RenterID         int64
	StartDate        time.Time
	EndDate          time.Time
	DayRateCents     int64
	DepositCents     int64
	CustomerRef      string
	PaymentMethodRef string
}

func dateOnly(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// Request creates a REQUESTED booking after checking the dates against the
// listing's confirmed calendar.
func (s *BookingService) Request(ctx context.Context, in RequestBookingInput) (*domain.Booking, error) {
	if in.RenterID == in.OwnerID {
		return nil, NewValidationError("renter and owner must differ")
	}
	if pricing.Days(in.StartDate, in.EndDate) <= 0 {
		return nil, NewValidationError("end date must be after start date")
	}
	if in.StartDate.Before(dateOnly(s.now())) {
		return nil, NewValidationError("start date is in the past")
	}
	if in.DayRateCents <= 0 {
		return nil, NewValidationError("day rate must be positive")
	}
	if in.DepositCents < 0 {
		return nil, NewValidationError("deposit must not be negative")
	}

	b := &domain.Booking{
		ListingID:        in.ListingID,
		OwnerID:          in.OwnerID,
		RenterID:         in.RenterID,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		Status:           domain.BookingStatusRequested,
		Version:          1,
		DayRateCents:     in.DayRateCents,
		DepositCents:     in.DepositCents,
		CustomerRef:      in.CustomerRef,
		PaymentMethodRef: in.PaymentMethodRef,
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		overlap, err := tx.Bookings().HasOverlap(ctx, in.ListingID, in.StartDate, in.EndDate, 0)
		if err != nil {
			return err
		}
		if overlap {
			return NewValidationError("listing is not available for the requested dates")
		}
		return tx.Bookings().Create(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("booking requested", "booking_id", b.ID, "listing_id", b.ListingID, "renter_id", b.RenterID)
	s.notifier.NotifyBooking(ctx, b.OwnerID, EventBookingRequested,
		"New booking request", "A renter requested your listing.", b.ID)
	return b, nil
}

// Confirm moves a REQUESTED booking to CONFIRMED, re-checking availability
// under the lock and fixing the money snapshot.
func (s *BookingService) Confirm(ctx context.Context, bookingID, ownerID int64) (*domain.Booking, error) {
	var b *domain.Booking
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		b, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.OwnerID != ownerID {
			return NewValidationError("only the owner may confirm booking %d", bookingID)
		}
		if b.Status != domain.BookingStatusRequested {
			return NewValidationError("booking %d is %s, not REQUESTED", bookingID, b.Status)
		}

		overlap, err := tx.Bookings().HasOverlap(ctx, b.ListingID, b.StartDate, b.EndDate, b.ID)
		if err != nil {
			return err
		}
		if overlap {
			return NewValidationError("listing is no longer available for booking %d", bookingID)
		}

		totals, err := pricing.ComputeTotals(b, s.cfg.Marketplace)
		if err != nil {
			return err
		}
		b.Totals = totals
		b.Status = domain.BookingStatusConfirmed
		return tx.Bookings().Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("booking confirmed", "booking_id", b.ID, "total_charge_cents", b.Totals.TotalChargeCents)
	s.notifier.NotifyBooking(ctx, b.RenterID, EventBookingConfirmed,
		"Booking confirmed", "The owner confirmed your booking. You can now pay.", b.ID)
	return b, nil
}

// Pay charges the renter the snapshotted total and moves the booking to PAID.
// The charge key is derived from booking id, version and amount, so a retry
// after a transient failure cannot double-charge.
func (s *BookingService) Pay(ctx context.Context, bookingID, renterID int64) (*domain.Booking, error) {
	var (
		amount      int64
		version     int32
		custRef     string
		methodRef   string
		alreadyPaid bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.RenterID != renterID {
			return NewValidationError("only the renter may pay booking %d", bookingID)
		}
		if b.Status == domain.BookingStatusPaid && b.ChargeRef != "" {
			alreadyPaid = true
			return nil
		}
		if b.Status != domain.BookingStatusConfirmed {
			return NewValidationError("booking %d is %s, not CONFIRMED", bookingID, b.Status)
		}
		if b.Totals == nil {
			return fmt.Errorf("booking %d has no totals snapshot", bookingID)
		}
		if b.CustomerRef == "" || b.PaymentMethodRef == "" {
			return NewValidationError("booking %d has no payment method on file", bookingID)
		}
		amount = b.Totals.TotalChargeCents
		version = b.Version
		custRef = b.CustomerRef
		methodRef = b.PaymentMethodRef
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyPaid {
		return s.store.Bookings().GetByID(ctx, bookingID)
	}

	key := payments.ChargeKey(bookingID, version, amount)
	logger.GatewayCall("charge", key, "booking_id", bookingID, "amount_cents", amount)
	chargeRef, err := s.gateway.Charge(ctx, amount, custRef, methodRef, key)
	logger.GatewayResult("charge", err, "booking_id", bookingID)
	if err != nil {
		if payments.IsTransient(err) {
			return nil, fmt.Errorf("charge for booking %d did not complete, retry: %w", bookingID, err)
		}
		return nil, fmt.Errorf("charge for booking %d declined: %w", bookingID, err)
	}

	var canceledMeanwhile bool
	var b *domain.Booking
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		b, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status == domain.BookingStatusPaid && b.ChargeRef != "" {
			return nil
		}
		if b.Status != domain.BookingStatusConfirmed {
			canceledMeanwhile = true
			return nil
		}
		b.ChargeRef = chargeRef
		b.Status = domain.BookingStatusPaid
		if err := logOnce(ctx, tx, &domain.Transaction{
			UserID:      b.RenterID,
			BookingID:   &b.ID,
			Kind:        domain.TransactionKindCharge,
			AmountCents: amount,
			Currency:    s.cfg.Payments.Currency,
			ExternalRef: key,
			Description: "rental charge",
		}); err != nil {
			return err
		}
		return tx.Bookings().Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if canceledMeanwhile {
		// The booking left CONFIRMED between the validation and the charge.
		// Undo the charge with the matching refund key and report the race.
		refundKey := payments.RefundKey(bookingID, "booking", amount)
		logger.GatewayCall("refund", refundKey, "booking_id", bookingID)
		_, rerr := s.gateway.Refund(ctx, chargeRef, amount, refundKey)
		logger.GatewayResult("refund", rerr, "booking_id", bookingID)
		if rerr != nil {
			return nil, fmt.Errorf("booking %d left CONFIRMED during payment and refund failed: %w", bookingID, rerr)
		}
		return nil, NewValidationError("booking %d was canceled during payment; charge refunded", bookingID)
	}

	logger.Info("booking paid", "booking_id", b.ID, "amount_cents", amount, "charge_ref", chargeRef)
	s.notifier.NotifyBooking(ctx, b.OwnerID, EventBookingPaid,
		"Booking paid", "The renter paid for the booking.", b.ID)
	return b, nil
}

// AddPhoto records a handover photo and stamps the phase timestamp on the
// first clean upload. Upload and virus scanning happen elsewhere; only the
// verdict arrives here.
func (s *BookingService) AddPhoto(ctx context.Context, bookingID, userID int64, phase domain.PhotoPhase, url string, av domain.AVStatus) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		var role domain.PartyRole
		switch userID {
		case b.RenterID:
			role = domain.PartyRoleRenter
		case b.OwnerID:
			role = domain.PartyRoleOwner
		default:
			return NewValidationError("user %d is not a party to booking %d", userID, bookingID)
		}
		if b.Status.IsTerminal() && b.Status != domain.BookingStatusCompleted {
			return NewValidationError("booking %d is canceled", bookingID)
		}

		if err := tx.Bookings().AddPhoto(ctx, &domain.BookingPhoto{
			BookingID:  bookingID,
			UploadedBy: userID,
			Role:       role,
			Phase:      phase,
			AVStatus:   av,
			URL:        url,
		}); err != nil {
			return err
		}

		if av == domain.AVStatusClean {
			now := s.now()
			switch phase {
			case domain.PhotoPhaseBefore:
				if b.BeforePhotosUploadedAt == nil {
					b.BeforePhotosUploadedAt = &now
				}
			case domain.PhotoPhaseAfter:
				if b.AfterPhotosUploadedAt == nil {
					b.AfterPhotosUploadedAt = &now
				}
			}
		}
		return tx.Bookings().Update(ctx, b)
	})
}

// ConfirmPickup records the handover. Requires the start date, an authorized
// deposit, and, when configured, at least one clean before-photo.
func (s *BookingService) ConfirmPickup(ctx context.Context, bookingID, ownerID int64) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.OwnerID != ownerID {
			return NewValidationError("only the owner may confirm pickup for booking %d", bookingID)
		}
		if b.PickupConfirmedAt != nil {
			return nil
		}
		if b.Status != domain.BookingStatusPaid {
			return NewValidationError("booking %d is %s, not PAID", bookingID, b.Status)
		}
		now := s.now()
		if now.Before(b.StartDate) {
			return NewValidationError("booking %d has not started yet", bookingID)
		}
		if b.DepositCents > 0 && b.DepositAuthorizedAt == nil {
			return NewValidationError("deposit for booking %d is not authorized yet", bookingID)
		}
		if s.cfg.Marketplace.RequireBeforePhotos {
			n, err := tx.Bookings().CountCleanPhotos(ctx, bookingID, domain.PhotoPhaseBefore)
			if err != nil {
				return err
			}
			if n == 0 {
				return NewValidationError("booking %d needs a clean before-photo for pickup", bookingID)
			}
		}
		b.PickupConfirmedAt = &now
		return tx.Bookings().Update(ctx, b)
	})
}

// RenterReturn is the renter's claim that the item is back with the owner.
// Only accepted once the rental period is over.
func (s *BookingService) RenterReturn(ctx context.Context, bookingID, renterID int64) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.RenterID != renterID {
			return NewValidationError("only the renter may mark booking %d returned", bookingID)
		}
		if b.ReturnedByRenterAt != nil {
			return nil
		}
		if b.Status != domain.BookingStatusPaid || b.PickupConfirmedAt == nil {
			return NewValidationError("booking %d is not in an active rental", bookingID)
		}
		now := s.now()
		if now.Before(b.EndDate) {
			return NewValidationError("booking %d has not ended yet", bookingID)
		}
		b.ReturnedByRenterAt = &now
		return tx.Bookings().Update(ctx, b)
	})
}

// billedLateDays derives how many overdue days have already been billed by
// comparing the booking's CHARGE ledger total against the rental charge.
func (s *BookingService) billedLateDays(ctx context.Context, b *domain.Booking) (int, error) {
	charged, err := s.store.Ledger().SumByKindAndBooking(ctx, domain.TransactionKindCharge, b.ID)
	if err != nil {
		return 0, err
	}
	extra := charged - b.Totals.TotalChargeCents
	if extra <= 0 || b.Totals.PerDayRentalCents == 0 {
		return 0, nil
	}
	return int(extra / b.Totals.PerDayRentalCents), nil
}

// billLateFee charges the renter for the overdue days not billed yet and logs
// the charge, the platform share, and the owner share (through the payout
// diff). extraDays is the cumulative clamped count; a repeat call with the
// same count moves nothing. Returns the amount charged now.
func (s *BookingService) billLateFee(ctx context.Context, b *domain.Booking, extraDays int) (int64, error) {
	already, err := s.billedLateDays(ctx, b)
	if err != nil {
		return 0, err
	}
	newDays := extraDays - already
	if newDays <= 0 {
		return 0, nil
	}

	amount := int64(newDays) * b.Totals.PerDayRentalCents
	key := payments.LateFeeKey(b.ID, extraDays, amount)
	logger.GatewayCall("charge", key, "booking_id", b.ID, "amount_cents", amount, "extra_days", extraDays)
	_, err = s.gateway.Charge(ctx, amount, b.CustomerRef, b.PaymentMethodRef, key)
	logger.GatewayResult("charge", err, "booking_id", b.ID)
	if err != nil {
		return 0, fmt.Errorf("late fee charge for booking %d: %w", b.ID, err)
	}

	platformShare := amount - int64(newDays)*b.Totals.PerDayPayoutCents
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := logOnce(ctx, tx, &domain.Transaction{
			UserID:      b.RenterID,
			BookingID:   &b.ID,
			Kind:        domain.TransactionKindCharge,
			AmountCents: amount,
			Currency:    s.cfg.Payments.Currency,
			ExternalRef: key,
			Description: fmt.Sprintf("late return fee (%d days)", extraDays),
		}); err != nil {
			return err
		}
		if platformShare > 0 {
			return logOnce(ctx, tx, &domain.Transaction{
				UserID:      0,
				BookingID:   &b.ID,
				Kind:        domain.TransactionKindPlatformFee,
				AmountCents: platformShare,
				Currency:    s.cfg.Payments.Currency,
				ExternalRef: fmt.Sprintf("bk-%d-platform-late-%dd-%d", b.ID, extraDays, platformShare),
				Description: "platform share of late fee",
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	target := b.Totals.OwnerPayoutCents + int64(extraDays)*b.Totals.PerDayPayoutCents
	if err := s.settle.TransferOwnerPayout(ctx, b, target, "booking"); err != nil {
		return amount, err
	}
	return amount, nil
}

// MarkLate bills the clamped late fee on an overdue rental. Days already
// billed by an earlier call are skipped, so re-running after more days pass
// charges only the difference.
func (s *BookingService) MarkLate(ctx context.Context, bookingID, ownerID int64) error {
	var b *domain.Booking
	var extraDays int
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		b, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.OwnerID != ownerID {
			return NewValidationError("only the owner may bill late days on booking %d", bookingID)
		}
		if b.Status != domain.BookingStatusPaid {
			return NewValidationError("booking %d is %s, not PAID", bookingID, b.Status)
		}
		if b.Totals == nil {
			return fmt.Errorf("booking %d has no totals snapshot", bookingID)
		}
		extraDays = pricing.ExtraDaysForLate(s.now(), b, s.cfg.Marketplace.MaxLateDays)
		if extraDays == 0 {
			return NewValidationError("booking %d is not overdue", bookingID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	amount, err := s.billLateFee(ctx, b, extraDays)
	if err != nil {
		return err
	}
	if amount > 0 {
		logger.Info("late fee billed", "booking_id", bookingID, "extra_days", extraDays, "amount_cents", amount)
		s.notifier.NotifyBooking(ctx, b.RenterID, EventBookingCompleted,
			"Late return fee charged", fmt.Sprintf("A late fee for %d extra day(s) was charged.", extraDays), bookingID)
	}
	return nil
}

// OwnerMarkReturned is the owner's confirmation of the physical return. It
// opens the dispute filing window, schedules the deposit release for when the
// window closes, and bills the clamped late fee when the return is overdue.
func (s *BookingService) OwnerMarkReturned(ctx context.Context, bookingID, ownerID int64) error {
	var (
		b         *domain.Booking
		extraDays int
		done      bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		b, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.OwnerID != ownerID {
			return NewValidationError("only the owner may confirm the return of booking %d", bookingID)
		}
		if b.ReturnConfirmedAt != nil {
			done = true
			return nil
		}
		if b.Status != domain.BookingStatusPaid || b.PickupConfirmedAt == nil {
			return NewValidationError("booking %d is not in an active rental", bookingID)
		}
		if b.Totals == nil {
			return fmt.Errorf("booking %d has no totals snapshot", bookingID)
		}
		extraDays = pricing.ExtraDaysForLate(s.now(), b, s.cfg.Marketplace.MaxLateDays)
		return nil
	})
	if err != nil || done {
		return err
	}

	var lateBilled int64
	if extraDays > 0 {
		lateBilled, err = s.billLateFee(ctx, b, extraDays)
		if err != nil {
			// A declined late fee does not block the return itself.
			logger.Warn("late fee billing failed", "booking_id", bookingID, "extra_days", extraDays, "error", err)
			lateBilled = 0
		}
	}

	var renterID int64
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if locked.ReturnConfirmedAt != nil || locked.Status != domain.BookingStatusPaid {
			return nil
		}
		now := s.now()
		window := now.Add(time.Duration(s.cfg.Marketplace.FilingWindowHours) * time.Hour)
		locked.ReturnConfirmedAt = &now
		locked.DisputeWindowExpiresAt = &window
		locked.DepositReleaseScheduledAt = &window
		renterID = locked.RenterID
		return tx.Bookings().Update(ctx, locked)
	})
	if err != nil {
		return err
	}

	if lateBilled > 0 && renterID != 0 {
		s.notifier.NotifyBooking(ctx, renterID, EventBookingCompleted,
			"Late return fee charged", fmt.Sprintf("A late fee for %d extra day(s) was charged.", extraDays), bookingID)
	}
	return nil
}

// Complete settles the owner payout and closes the booking. A CONFIRMED
// booking (nothing charged yet) completes directly; a PAID one needs the
// owner's return confirmation first. The payout target is the snapshot payout
// plus the owner share of the late days actually billed; the ledger diff
// makes re-running a crashed completion a pure top-up.
func (s *BookingService) Complete(ctx context.Context, bookingID, ownerID int64) error {
	b, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.OwnerID != ownerID {
		return NewValidationError("only the owner may complete booking %d", bookingID)
	}
	if b.Status == domain.BookingStatusCompleted {
		return nil
	}

	if b.Status == domain.BookingStatusConfirmed {
		return s.completeUnpaid(ctx, b)
	}
	if b.Status != domain.BookingStatusPaid || b.ReturnConfirmedAt == nil {
		return NewValidationError("booking %d has no confirmed return", bookingID)
	}
	if b.Totals == nil {
		return fmt.Errorf("booking %d has no totals snapshot", bookingID)
	}

	lateDays, err := s.billedLateDays(ctx, b)
	if err != nil {
		return err
	}
	target := b.Totals.OwnerPayoutCents + int64(lateDays)*b.Totals.PerDayPayoutCents
	if err := s.settle.TransferOwnerPayout(ctx, b, target, "booking"); err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if locked.Status != domain.BookingStatusPaid {
			return nil
		}
		if err := logOnce(ctx, tx, &domain.Transaction{
			UserID:      0,
			BookingID:   &locked.ID,
			Kind:        domain.TransactionKindPlatformFee,
			AmountCents: locked.Totals.PlatformFeeCents,
			Currency:    s.cfg.Payments.Currency,
			ExternalRef: fmt.Sprintf("bk-%d-platform-booking-%d", locked.ID, locked.Totals.PlatformFeeCents),
			Description: "platform fees",
		}); err != nil {
			return err
		}
		if locked.DisputeWindowExpiresAt == nil {
			anchor := s.now()
			if locked.ReturnConfirmedAt != nil {
				anchor = *locked.ReturnConfirmedAt
			}
			window := anchor.Add(time.Duration(s.cfg.Marketplace.FilingWindowHours) * time.Hour)
			locked.DisputeWindowExpiresAt = &window
		}
		locked.Status = domain.BookingStatusCompleted
		return tx.Bookings().Update(ctx, locked)
	})
	if err != nil {
		return err
	}

	logger.Info("booking completed", "booking_id", bookingID, "owner_payout_cents", target)
	s.notifier.NotifyBooking(ctx, b.RenterID, EventBookingCompleted,
		"Booking completed", "Your rental is complete. Any deposit is released after the dispute window.", bookingID)
	s.notifier.NotifyBooking(ctx, b.OwnerID, EventBookingCompleted,
		"Booking completed", "Your payout is on the way.", bookingID)
	return nil
}

// completeUnpaid closes a CONFIRMED booking that was never charged. No money
// moves; the dispute window opens from now.
func (s *BookingService) completeUnpaid(ctx context.Context, b *domain.Booking) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Bookings().GetByIDForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		if locked.Status != domain.BookingStatusConfirmed {
			return nil
		}
		if locked.DisputeWindowExpiresAt == nil {
			window := s.now().Add(time.Duration(s.cfg.Marketplace.FilingWindowHours) * time.Hour)
			locked.DisputeWindowExpiresAt = &window
		}
		locked.Status = domain.BookingStatusCompleted
		return tx.Bookings().Update(ctx, locked)
	})
	if err != nil {
		return err
	}

	logger.Info("booking completed without payment", "booking_id", b.ID)
	s.notifier.NotifyBooking(ctx, b.RenterID, EventBookingCompleted,
		"Booking completed", "Your rental is complete.", b.ID)
	return nil
}

// MarkNotReturned handles the severe-overdue path: the owner reports the item
// missing well past the end date. The full deposit is captured for the owner,
// the clamped late fee applies, and the booking closes with a dispute window
// so the renter can contest the capture.
func (s *BookingService) MarkNotReturned(ctx context.Context, bookingID, ownerID int64) error {
	b, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.OwnerID != ownerID {
		return NewValidationError("only the owner may report booking %d as not returned", bookingID)
	}
	if b.Status != domain.BookingStatusPaid || b.PickupConfirmedAt == nil {
		return NewValidationError("booking %d is not in an active rental", bookingID)
	}
	if b.ReturnConfirmedAt != nil {
		return NewValidationError("booking %d was already returned", bookingID)
	}
	threshold := b.EndDate.AddDate(0, 0, s.cfg.Marketplace.SevereOverdueThresholdDays)
	now := s.now()
	if now.Before(threshold) {
		return NewValidationError("booking %d is not yet %d days overdue", bookingID, s.cfg.Marketplace.SevereOverdueThresholdDays)
	}

	st := Settlement{
		BookingID:           b.ID,
		Scope:               "not-returned",
		DepositCaptureCents: b.DepositCents,
	}
	if !b.HasDepositHold() {
		st.DepositCaptureCents = 0
	}
	window := now.Add(time.Duration(s.cfg.Marketplace.FilingWindowHours) * time.Hour)
	err = s.settle.Apply(ctx, st, func(locked *domain.Booking) {
		if locked.Status != domain.BookingStatusPaid {
			return
		}
		locked.Status = domain.BookingStatusCompleted
		locked.DisputeWindowExpiresAt = &window
	})
	if err != nil {
		return err
	}

	if b.Totals != nil {
		lateDays, err := s.billedLateDays(ctx, b)
		if err != nil {
			return err
		}
		target := b.Totals.OwnerPayoutCents + int64(lateDays)*b.Totals.PerDayPayoutCents
		if err := s.settle.TransferOwnerPayout(ctx, b, target+st.DepositCaptureCents, "booking"); err != nil {
			return err
		}
	}

	logger.Warn("booking marked not returned", "booking_id", bookingID, "deposit_captured_cents", st.DepositCaptureCents)
	s.notifier.NotifyBooking(ctx, b.RenterID, EventBookingCompleted,
		"Item reported not returned", "The owner reported the item as not returned; the deposit was captured.", bookingID)
	return nil
}

// Cancel routes a cancellation through the settlement plan for the actor and
// timing. Canceling an already-canceled booking is a no-op.
func (s *BookingService) Cancel(ctx context.Context, bookingID int64, actor domain.CancelActor, actorUserID int64, reason string) error {
	var b *domain.Booking
	var noop bool
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		b, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status == domain.BookingStatusCanceled {
			noop = true
			return nil
		}
		if b.Status == domain.BookingStatusCompleted {
			return NewValidationError("booking %d is already completed", bookingID)
		}
		switch actor {
		case domain.CancelActorRenter:
			if actorUserID != b.RenterID {
				return NewValidationError("user %d is not the renter of booking %d", actorUserID, bookingID)
			}
		case domain.CancelActorOwner:
			if actorUserID != b.OwnerID {
				return NewValidationError("user %d is not the owner of booking %d", actorUserID, bookingID)
			}
		}
		return nil
	})
	if err != nil || noop {
		return err
	}

	st := s.settle.ComputeCancellation(b, actor, s.now())
	auto := actor == domain.CancelActorSystem || actor == domain.CancelActorNoShow
	err = s.settle.Apply(ctx, st, func(locked *domain.Booking) {
		if locked.Status.IsTerminal() {
			return
		}
		locked.Status = domain.BookingStatusCanceled
		locked.CanceledBy = actor
		locked.CanceledReason = reason
		locked.AutoCanceled = auto
	})
	if err != nil {
		return err
	}

	logger.Info("booking canceled", "booking_id", bookingID, "actor", actor, "reason", reason)
	msg := "The booking was canceled."
	if reason != "" {
		msg = fmt.Sprintf("The booking was canceled (%s).", reason)
	}
	s.notifier.NotifyBooking(ctx, b.RenterID, EventBookingCanceled, "Booking canceled", msg, bookingID)
	s.notifier.NotifyBooking(ctx, b.OwnerID, EventBookingCanceled, "Booking canceled", msg, bookingID)
	return nil
}

// AdjustDates is the operator correction for a pre-payment booking. A
// confirmed booking gets a fresh totals snapshot and a version bump so the
// eventual charge carries a new idempotency key.
func (s *BookingService) AdjustDates(ctx context.Context, bookingID int64, newStart, newEnd time.Time) (*domain.Booking, error) {
	if pricing.Days(newStart, newEnd) <= 0 {
		return nil, NewValidationError("end date must be after start date")
	}

	var b *domain.Booking
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		b, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != domain.BookingStatusRequested && b.Status != domain.BookingStatusConfirmed {
			return NewValidationError("booking %d is %s; dates can only change before payment", bookingID, b.Status)
		}
		overlap, err := tx.Bookings().HasOverlap(ctx, b.ListingID, newStart, newEnd, b.ID)
		if err != nil {
			return err
		}
		if overlap {
			return NewValidationError("listing is not available for the new dates")
		}

		b.StartDate = newStart
		b.EndDate = newEnd
		if b.Status == domain.BookingStatusConfirmed {
			totals, err := pricing.ComputeTotals(b, s.cfg.Marketplace)
			if err != nil {
				return err
			}
			b.Totals = totals
			b.Version++
		}
		return tx.Bookings().Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBooking loads one booking.
func (s *BookingService) GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	return s.store.Bookings().GetByID(ctx, bookingID)
}

// LedgerForBooking returns the booking's ledger entries in creation order.
func (s *BookingService) LedgerForBooking(ctx context.Context, bookingID int64) ([]domain.Transaction, error) {
	return s.store.Ledger().ListByBooking(ctx, bookingID)
}
