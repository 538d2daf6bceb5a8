package repository

import (
	"context"
	"time"

	"gearshare-backend/internal/domain"
)

// Store bundles the repositories with a transaction runner. WithTx yields a
// Store whose repositories run inside one database transaction; the ForUpdate
// reads take row-level write locks and are only meaningful there.
type Store interface {
	Bookings() BookingRepository
	Ledger() LedgerRepository
	Disputes() DisputeRepository
	Notifications() NotificationRepository

	WithTx(ctx context.Context, fn func(Store) error) error
}

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	// GetByIDForUpdate locks the booking row for the enclosing transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	Update(ctx context.Context, b *domain.Booking) error

	// HasOverlap reports whether a CONFIRMED or PAID booking for the listing
	// intersects the half-open range [start, end), excluding excludeID.
	HasOverlap(ctx context.Context, listingID int64, start, end time.Time, excludeID int64) (bool, error)

	// ListNeedingDepositAuth returns PAID bookings whose start date has
	// arrived, with no authorized deposit and no prior attempts.
	ListNeedingDepositAuth(ctx context.Context, today time.Time) ([]domain.Booking, error)

	// ListDepositReleasable returns COMPLETED bookings holding an unreleased
	// deposit past their scheduled release time and not deposit-locked.
	ListDepositReleasable(ctx context.Context, now time.Time) ([]domain.Booking, error)

	// ListStalePrePayment returns REQUESTED/CONFIRMED bookings whose start
	// date has passed without payment.
	ListStalePrePayment(ctx context.Context, today time.Time) ([]domain.Booking, error)

	// CountCleanPhotos counts AV-clean photos for the booking; phase narrows
	// to BEFORE/AFTER when non-empty.
	CountCleanPhotos(ctx context.Context, bookingID int64, phase domain.PhotoPhase) (int, error)
	AddPhoto(ctx context.Context, p *domain.BookingPhoto) error
}

type LedgerRepository interface {
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	// ExistsByKindAndRef is the idempotency guard consulted before every
	// settlement write.
	ExistsByKindAndRef(ctx context.Context, kind domain.TransactionKind, externalRef string) (bool, error)
	// SumByKindAndBooking totals the signed amounts already logged for the
	// booking, used by the diff-based owner-earning adjustment.
	SumByKindAndBooking(ctx context.Context, kind domain.TransactionKind, bookingID int64) (int64, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.Transaction, error)
	ListByUser(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Transaction, int32, error)
}

type DisputeRepository interface {
	Create(ctx context.Context, d *domain.DisputeCase) error
	GetByID(ctx context.Context, id int64) (*domain.DisputeCase, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.DisputeCase, error)
	Update(ctx context.Context, d *domain.DisputeCase) error

	// ListActiveByBooking returns cases in an active status for the booking.
	ListActiveByBooking(ctx context.Context, bookingID int64) ([]domain.DisputeCase, error)
	// ListRebuttalOverdue returns AWAITING_REBUTTAL cases whose rebuttal
	// deadline has passed.
	ListRebuttalOverdue(ctx context.Context, now time.Time) ([]domain.DisputeCase, error)

	AddEvidence(ctx context.Context, e *domain.DisputeEvidence) error
	AddMessage(ctx context.Context, m *domain.DisputeMessage) error
	// CountCleanEvidence counts AV-clean evidence items; kind narrows to
	// PHOTO/VIDEO when non-empty.
	CountCleanEvidence(ctx context.Context, disputeID int64, kind domain.EvidenceKind) (int, error)
	// HasPartyActivity reports whether the given role posted a message or
	// uploaded evidence in (since, until].
	HasPartyActivity(ctx context.Context, disputeID int64, role domain.PartyRole, since, until time.Time) (bool, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int64) error
}
