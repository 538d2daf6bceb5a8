package service

import (
	"context"
	"fmt"
	"time"

	"gearshare-backend/internal/config"
	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/repository"
)

type DisputeService struct {
	store    repository.Store
	settle   *SettlementService
	notifier *Notifier
	cfg      *config.Config
	now      func() time.Time
}

func NewDisputeService(store repository.Store, settle *SettlementService, notifier *Notifier, cfg *config.Config) *DisputeService {
	return &DisputeService{
		store:    store,
		settle:   settle,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func partyRole(b *domain.Booking, userID int64) (domain.PartyRole, error) {
	switch userID {
	case b.RenterID:
		return domain.PartyRoleRenter, nil
	case b.OwnerID:
		return domain.PartyRoleOwner, nil
	}
	return "", NewValidationError("user %d is not a party to booking %d", userID, b.ID)
}

func (s *DisputeService) partyID(b *domain.Booking, role domain.PartyRole) int64 {
	if role == domain.PartyRoleRenter {
		return b.RenterID
	}
	return b.OwnerID
}

type FileDisputeInput struct {
	BookingID   int64
	FiledBy     int64
	Category    domain.DisputeCategory
	DamageFlow  domain.DamageFlowKind
	Description string
	// StaffOverride lets support file past the window.
	StaffOverride bool
}

// File opens a dispute case on a paid or completed booking. Only one active
// case may exist per booking. A filing past the window is recorded but closed
// immediately, unless the category is exempt, staff overrides, or a deposit
// hold still exists; safety and fraud reports skip the window by default.
func (s *DisputeService) File(ctx context.Context, in FileDisputeInput) (*domain.DisputeCase, error) {
	if in.DamageFlow == "" {
		in.DamageFlow = domain.DamageFlowGeneric
	}

	var d *domain.DisputeCase
	var counterpartyID int64
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Bookings().GetByIDForUpdate(ctx, in.BookingID)
		if err != nil {
			return err
		}
		role, err := partyRole(b, in.FiledBy)
		if err != nil {
			return err
		}
		if b.Status != domain.BookingStatusPaid && b.Status != domain.BookingStatusCompleted {
			return NewValidationError("booking %d is %s; disputes need a paid or completed booking", b.ID, b.Status)
		}

		active, err := tx.Disputes().ListActiveByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return NewValidationError("booking %d already has an active dispute", b.ID)
		}

		now := s.now()
		windowOpen := b.DisputeWindowOpen(now)
		if in.Category == domain.DisputeCategorySafetyOrFraud && !s.cfg.Marketplace.EnforceWindowForSafety {
			windowOpen = true
		}
		if in.StaffOverride {
			windowOpen = true
		}
		if b.HasDepositHold() {
			// The deposit has not been released yet; the case can still
			// settle against it.
			windowOpen = true
		}

		d = &domain.DisputeCase{
			BookingID:    b.ID,
			OpenedBy:     in.FiledBy,
			OpenedByRole: role,
			Category:     in.Category,
			DamageFlow:   in.DamageFlow,
			FiledAt:      now,
		}

		if !windowOpen {
			d.Status = domain.DisputeStatusClosedAuto
			d.DecisionNotes = domain.CloseNoteWindowExpired
			d.ResolvedAt = &now
			return tx.Disputes().Create(ctx, d)
		}

		m := s.cfg.Marketplace
		if in.Category.SkipsEvidenceGating() {
			d.Status = domain.DisputeStatusAwaitingRebuttal
			hours := m.RebuttalWindowHours
			if in.Category == domain.DisputeCategoryPickupNoShow {
				hours = m.NoShowRebuttalHours
			}
			due := now.Add(time.Duration(hours) * time.Hour)
			d.RebuttalDueAt = &due
		} else {
			d.Status = domain.DisputeStatusOpen
			due := now.Add(time.Duration(m.IntakeWindowHours) * time.Hour)
			d.IntakeEvidenceDueAt = &due
		}

		b.IsDisputed = true
		if b.HasDepositHold() {
			b.DepositLocked = true
			d.DepositLocked = true
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		if err := tx.Disputes().Create(ctx, d); err != nil {
			return err
		}
		if in.Description != "" {
			if err := tx.Disputes().AddMessage(ctx, &domain.DisputeMessage{
				DisputeID: d.ID,
				AuthorID:  in.FiledBy,
				Role:      role,
				Body:      in.Description,
			}); err != nil {
				return err
			}
		}
		counterpartyID = s.partyID(b, role.Counterparty())
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("dispute filed", "dispute_id", d.ID, "booking_id", d.BookingID,
		"category", d.Category, "status", d.Status)
	if d.Status.Active() && counterpartyID != 0 {
		s.notifier.Notify(ctx, counterpartyID, EventDisputeFiled,
			"Dispute filed", "A dispute was filed on one of your bookings.",
			map[string]string{"dispute_id": fmt.Sprintf("%d", d.ID), "booking_id": fmt.Sprintf("%d", d.BookingID)})
	}
	return d, nil
}

// AddEvidence attaches a photo or video to an active case and re-evaluates
// intake when the case is still gathering evidence.
func (s *DisputeService) AddEvidence(ctx context.Context, disputeID, userID int64, kind domain.EvidenceKind, url string, av domain.AVStatus) error {
	var inIntake bool
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		d, err := tx.Disputes().GetByIDForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if !d.Status.Active() {
			return NewValidationError("dispute %d is closed", disputeID)
		}
		b, err := tx.Bookings().GetByID(ctx, d.BookingID)
		if err != nil {
			return err
		}
		role, err := partyRole(b, userID)
		if err != nil {
			return err
		}
		inIntake = d.Status == domain.DisputeStatusOpen || d.Status == domain.DisputeStatusIntakeMissingEvidence
		return tx.Disputes().AddEvidence(ctx, &domain.DisputeEvidence{
			DisputeID:  disputeID,
			UploadedBy: userID,
			Role:       role,
			Kind:       kind,
			AVStatus:   av,
			URL:        url,
		})
	})
	if err != nil {
		return err
	}
	if inIntake && av == domain.AVStatusClean {
		return s.EvaluateIntake(ctx, disputeID)
	}
	return nil
}

// PostMessage adds a message from one party to an active case.
func (s *DisputeService) PostMessage(ctx context.Context, disputeID, userID int64, body string) error {
	if body == "" {
		return NewValidationError("message body is empty")
	}
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		d, err := tx.Disputes().GetByIDForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if !d.Status.Active() {
			return NewValidationError("dispute %d is closed", disputeID)
		}
		b, err := tx.Bookings().GetByID(ctx, d.BookingID)
		if err != nil {
			return err
		}
		role, err := partyRole(b, userID)
		if err != nil {
			return err
		}
		return tx.Disputes().AddMessage(ctx, &domain.DisputeMessage{
			DisputeID: disputeID,
			AuthorID:  userID,
			Role:      role,
			Body:      body,
		})
	})
}

// EvaluateIntake checks the evidence minima for a case still in intake and
// advances it to AWAITING_REBUTTAL, parks it as missing evidence, or closes
// it when the intake deadline has passed without enough evidence.
//
// Minima: a broke-during-use damage claim needs one clean video or two clean
// photos; everything else needs one clean item. Damage, missing-item and
// not-as-described claims additionally need one clean handover photo on the
// booking itself.
func (s *DisputeService) EvaluateIntake(ctx context.Context, disputeID int64) error {
	var (
		advanced       bool
		parked         bool
		closed         bool
		filerID        int64
		counterpartyID int64
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		d, err := tx.Disputes().GetByIDForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != domain.DisputeStatusOpen && d.Status != domain.DisputeStatusIntakeMissingEvidence {
			return nil
		}
		b, err := tx.Bookings().GetByID(ctx, d.BookingID)
		if err != nil {
			return err
		}

		photos, err := tx.Disputes().CountCleanEvidence(ctx, disputeID, domain.EvidenceKindPhoto)
		if err != nil {
			return err
		}
		videos, err := tx.Disputes().CountCleanEvidence(ctx, disputeID, domain.EvidenceKindVideo)
		if err != nil {
			return err
		}

		sufficient := photos+videos >= 1
		if d.Category == domain.DisputeCategoryDamage && d.DamageFlow == domain.DamageFlowBrokeDuringUse {
			sufficient = videos >= 1 || photos >= 2
		}
		if sufficient && d.Category.RequiresBookingPhoto() {
			n, err := tx.Bookings().CountCleanPhotos(ctx, d.BookingID, "")
			if err != nil {
				return err
			}
			sufficient = n >= 1
		}

		now := s.now()
		filerID = d.OpenedBy
		counterpartyID = s.partyID(b, d.OpenedByRole.Counterparty())

		if sufficient {
			d.Status = domain.DisputeStatusAwaitingRebuttal
			due := now.Add(time.Duration(s.cfg.Marketplace.RebuttalWindowHours) * time.Hour)
			d.RebuttalDueAt = &due
			advanced = true
			return tx.Disputes().Update(ctx, d)
		}

		if d.IntakeEvidenceDueAt != nil && now.After(*d.IntakeEvidenceDueAt) {
			d.Status = domain.DisputeStatusClosedAuto
			d.DecisionNotes = domain.CloseNoteNoEvidence
			d.ResolvedAt = &now
			closed = true
			if err := tx.Disputes().Update(ctx, d); err != nil {
				return err
			}
			return clearDisputeFlags(ctx, tx, d.BookingID)
		}

		if d.Status != domain.DisputeStatusIntakeMissingEvidence {
			d.Status = domain.DisputeStatusIntakeMissingEvidence
			m := s.cfg.Marketplace
			intakeDue := d.FiledAt.Add(time.Duration(m.IntakeWindowHours) * time.Hour)
			rebuttalDue := d.FiledAt.Add(time.Duration(m.RebuttalWindowHours) * time.Hour)
			d.IntakeEvidenceDueAt = &intakeDue
			d.RebuttalDueAt = &rebuttalDue
			parked = true
			return tx.Disputes().Update(ctx, d)
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch {
	case advanced:
		s.notifier.Notify(ctx, counterpartyID, EventDisputeRebuttal,
			"Dispute response needed", "A dispute against you moved forward; please respond before the deadline.",
			map[string]string{"dispute_id": fmt.Sprintf("%d", disputeID)})
	case parked:
		s.notifier.Notify(ctx, filerID, EventDisputeEvidence,
			"More evidence needed", "Your dispute needs more evidence before it can proceed.",
			map[string]string{"dispute_id": fmt.Sprintf("%d", disputeID)})
	case closed:
		s.notifier.Notify(ctx, filerID, EventDisputeClosed,
			"Dispute closed", "Your dispute was closed because no sufficient evidence arrived in time.",
			map[string]string{"dispute_id": fmt.Sprintf("%d", disputeID)})
	}
	return nil
}

// HandleRebuttalTimeout processes one case whose rebuttal deadline passed.
// If the counterparty replied within the rebuttal window ending at the
// deadline, the case is left alone. If not, a pickup-no-show case
// auto-resolves for the renter: the full charge comes back, the booking
// cancels as a no-show, and the hold is released. Other categories go to
// review flagged for the operator. Re-running after the transition is a
// no-op.
func (s *DisputeService) HandleRebuttalTimeout(ctx context.Context, disputeID int64) error {
	var (
		autoResolve bool
		booking     *domain.Booking
		dispute     *domain.DisputeCase
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		d, err := tx.Disputes().GetByIDForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != domain.DisputeStatusAwaitingRebuttal || d.RebuttalDueAt == nil {
			return nil
		}
		now := s.now()
		if now.Before(*d.RebuttalDueAt) {
			return nil
		}
		b, err := tx.Bookings().GetByID(ctx, d.BookingID)
		if err != nil {
			return err
		}

		hours := s.cfg.Marketplace.RebuttalWindowHours
		if d.Category == domain.DisputeCategoryPickupNoShow {
			hours = s.cfg.Marketplace.NoShowRebuttalHours
		}
		windowStart := d.RebuttalDueAt.Add(-time.Duration(hours) * time.Hour)
		replied, err := tx.Disputes().HasPartyActivity(ctx, disputeID, d.OpenedByRole.Counterparty(), windowStart, *d.RebuttalDueAt)
		if err != nil {
			return err
		}
		if replied {
			// The counterparty engaged; the parties keep talking and the
			// operator picks the case up through the normal queue.
			return nil
		}

		if d.Category == domain.DisputeCategoryPickupNoShow {
			// Settlement needs gateway calls; finish outside this lock.
			autoResolve = true
			booking = b
			dispute = d
			return nil
		}

		d.Status = domain.DisputeStatusUnderReview
		d.ReviewStartedAt = &now
		d.AutoRebuttalTimeout = true
		return tx.Disputes().Update(ctx, d)
	})
	if err != nil || !autoResolve {
		return err
	}
	return s.autoResolveNoShow(ctx, dispute, booking)
}

func (s *DisputeService) autoResolveNoShow(ctx context.Context, d *domain.DisputeCase, b *domain.Booking) error {
	var refund int64
	if b.Totals != nil {
		refund = b.Totals.TotalChargeCents
	}
	d.RefundAmountCents = refund
	st := s.settle.ComputeResolution(d, b)

	err := s.settle.Apply(ctx, st, func(locked *domain.Booking) {
		if !locked.Status.IsTerminal() {
			locked.Status = domain.BookingStatusCanceled
			locked.CanceledBy = domain.CancelActorNoShow
			locked.CanceledReason = "owner_no_show"
			locked.AutoCanceled = true
		}
		locked.IsDisputed = false
		locked.DepositLocked = false
	})
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Disputes().GetByIDForUpdate(ctx, d.ID)
		if err != nil {
			return err
		}
		if locked.Status != domain.DisputeStatusAwaitingRebuttal {
			return nil
		}
		now := s.now()
		locked.Status = domain.DisputeStatusResolvedRenter
		locked.AutoRebuttalTimeout = true
		locked.ResolvedAt = &now
		locked.RefundAmountCents = st.RefundCents
		locked.DecisionNotes = "auto_resolved_owner_no_show"
		locked.DepositLocked = false
		return tx.Disputes().Update(ctx, locked)
	})
	if err != nil {
		return err
	}

	logger.Info("pickup no-show auto-resolved", "dispute_id", d.ID, "booking_id", b.ID, "refund_cents", st.RefundCents)
	s.notifier.NotifyBooking(ctx, b.RenterID, EventDisputeResolved,
		"Dispute resolved", "The owner did not respond; your booking was refunded in full.", b.ID)
	s.notifier.NotifyBooking(ctx, b.OwnerID, EventDisputeResolved,
		"Dispute resolved", "You did not respond to a no-show dispute; the booking was canceled and refunded.", b.ID)
	return nil
}

type ResolveDisputeInput struct {
	DisputeID           int64
	Outcome             domain.DisputeStatus
	RefundCents         int64
	DepositCaptureCents int64
	Notes               string
}

// Resolve is the operator decision. The refund is capped at the original
// charge and the capture at the held deposit; both apply through the
// settlement engine under the dispute's scope.
func (s *DisputeService) Resolve(ctx context.Context, in ResolveDisputeInput) error {
	if !in.Outcome.Resolved() {
		return NewValidationError("%s is not a resolution outcome", in.Outcome)
	}
	if in.RefundCents < 0 || in.DepositCaptureCents < 0 {
		return NewValidationError("resolution amounts must not be negative")
	}

	d, err := s.store.Disputes().GetByID(ctx, in.DisputeID)
	if err != nil {
		return err
	}
	if !d.Status.Active() {
		return NewValidationError("dispute %d is not open for resolution", in.DisputeID)
	}
	b, err := s.store.Bookings().GetByID(ctx, d.BookingID)
	if err != nil {
		return err
	}

	d.RefundAmountCents = in.RefundCents
	d.DepositCaptureCents = in.DepositCaptureCents
	st := s.settle.ComputeResolution(d, b)

	notes := in.Notes
	if in.DepositCaptureCents > st.DepositCaptureCents {
		if notes != "" {
			notes += "; "
		}
		notes += domain.NoteDepositCaptureCapped
	}

	err = s.settle.Apply(ctx, st, func(locked *domain.Booking) {
		locked.IsDisputed = false
		locked.DepositLocked = false
	})
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Disputes().GetByIDForUpdate(ctx, in.DisputeID)
		if err != nil {
			return err
		}
		if !locked.Status.Active() {
			return nil
		}
		now := s.now()
		locked.Status = in.Outcome
		locked.ResolvedAt = &now
		locked.RefundAmountCents = st.RefundCents
		locked.DepositCaptureCents = st.DepositCaptureCents
		locked.DecisionNotes = notes
		locked.DepositLocked = false
		return tx.Disputes().Update(ctx, locked)
	})
	if err != nil {
		return err
	}

	logger.Info("dispute resolved", "dispute_id", in.DisputeID, "outcome", in.Outcome,
		"refund_cents", st.RefundCents, "deposit_capture_cents", st.DepositCaptureCents)
	s.notifier.NotifyBooking(ctx, b.RenterID, EventDisputeResolved,
		"Dispute resolved", "The dispute on your booking was resolved.", b.ID)
	s.notifier.NotifyBooking(ctx, b.OwnerID, EventDisputeResolved,
		"Dispute resolved", "The dispute on your booking was resolved.", b.ID)
	return nil
}

// Close is the operator shortcut for cases that need no settlement, tagged
// with why (duplicate, late filing, no evidence). Closing a closed case is a
// no-op.
func (s *DisputeService) Close(ctx context.Context, disputeID int64, noteTag string) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		d, err := tx.Disputes().GetByIDForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if !d.Status.Active() {
			return nil
		}
		now := s.now()
		d.Status = domain.DisputeStatusClosedAuto
		d.DecisionNotes = noteTag
		d.ResolvedAt = &now
		d.DepositLocked = false
		if err := tx.Disputes().Update(ctx, d); err != nil {
			return err
		}
		return clearDisputeFlags(ctx, tx, d.BookingID)
	})
}

// GetDispute loads one case.
func (s *DisputeService) GetDispute(ctx context.Context, disputeID int64) (*domain.DisputeCase, error) {
	return s.store.Disputes().GetByID(ctx, disputeID)
}

// clearDisputeFlags drops the booking's dispute markers when no active case
// remains. Runs inside the caller's transaction.
func clearDisputeFlags(ctx context.Context, tx repository.Store, bookingID int64) error {
	active, err := tx.Disputes().ListActiveByBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return nil
	}
	b, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return err
	}
	if !b.IsDisputed && !b.DepositLocked {
		return nil
	}
	b.IsDisputed = false
	b.DepositLocked = false
	return tx.Bookings().Update(ctx, b)
}
