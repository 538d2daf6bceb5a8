package postgres

import (
	"context"
	"database/sql"
	"time"

	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/repository"
)

type bookingRepository struct {
	q DBTX
}

func NewBookingRepository(q DBTX) repository.BookingRepository {
	return &bookingRepository{q: q}
}

const bookingColumns = `id, listing_id, owner_id, renter_id, start_date, end_date, status, version,
	day_rate_cents, deposit_cents, customer_ref, payment_method_ref, charge_ref, deposit_hold_ref,
	deposit_attempts, deposit_authorized_at, deposit_release_scheduled_at, deposit_released_at,
	pickup_confirmed_at, before_photos_uploaded_at, returned_by_renter_at, return_confirmed_at,
	after_photos_uploaded_at, dispute_window_expires_at,
	COALESCE(canceled_by, ''), COALESCE(canceled_reason, ''), auto_canceled, is_disputed, deposit_locked,
	snap_subtotal_cents, snap_renter_fee_cents, snap_owner_fee_cents, snap_owner_payout_cents,
	snap_platform_fee_cents, snap_deposit_cents, snap_total_charge_cents,
	snap_per_day_rental_cents, snap_per_day_payout_cents,
	created_on, updated_on`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	var canceledBy string
	var snapSubtotal, snapRenterFee, snapOwnerFee, snapOwnerPayout,
		snapPlatformFee, snapDeposit, snapTotalCharge,
		snapPerDayRental, snapPerDayPayout sql.NullInt64

	err := row.Scan(
		&b.ID, &b.ListingID, &b.OwnerID, &b.RenterID, &b.StartDate, &b.EndDate, &b.Status, &b.Version,
		&b.DayRateCents, &b.DepositCents, &b.CustomerRef, &b.PaymentMethodRef, &b.ChargeRef, &b.DepositHoldRef,
		&b.DepositAttempts, &b.DepositAuthorizedAt, &b.DepositReleaseScheduledAt, &b.DepositReleasedAt,
		&b.PickupConfirmedAt, &b.BeforePhotosUploadedAt, &b.ReturnedByRenterAt, &b.ReturnConfirmedAt,
		&b.AfterPhotosUploadedAt, &b.DisputeWindowExpiresAt,
		&canceledBy, &b.CanceledReason, &b.AutoCanceled, &b.IsDisputed, &b.DepositLocked,
		&snapSubtotal, &snapRenterFee, &snapOwnerFee, &snapOwnerPayout,
		&snapPlatformFee, &snapDeposit, &snapTotalCharge,
		&snapPerDayRental, &snapPerDayPayout,
		&b.CreatedOn, &b.UpdatedOn,
	)
	if err != nil {
		return nil, err
	}
	b.CanceledBy = domain.CancelActor(canceledBy)

	// The totals snapshot exists only once the booking has been confirmed.
	if snapTotalCharge.Valid {
		b.Totals = &domain.BookingTotals{
			RentalSubtotalCents: snapSubtotal.Int64,
			RenterFeeCents:      snapRenterFee.Int64,
			OwnerFeeCents:       snapOwnerFee.Int64,
			OwnerPayoutCents:    snapOwnerPayout.Int64,
			PlatformFeeCents:    snapPlatformFee.Int64,
			DepositCents:        snapDeposit.Int64,
			TotalChargeCents:    snapTotalCharge.Int64,
			PerDayRentalCents:   snapPerDayRental.Int64,
			PerDayPayoutCents:   snapPerDayPayout.Int64,
		}
	}
	return b, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `INSERT INTO bookings (listing_id, owner_id, renter_id, start_date, end_date, status, version,
			day_rate_cents, deposit_cents, customer_ref, payment_method_ref, created_on, updated_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	now := time.Now()
	return r.q.QueryRowContext(ctx, query,
		b.ListingID, b.OwnerID, b.RenterID, b.StartDate, b.EndDate, b.Status, b.Version,
		b.DayRateCents, b.DepositCents, b.CustomerRef, b.PaymentMethodRef, now, now,
	).Scan(&b.ID)
}

func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.q.QueryRowContext(ctx, query, id))
}

func (r *bookingRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return scanBooking(r.q.QueryRowContext(ctx, query, id))
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	query := `UPDATE bookings SET
			start_date=$1, end_date=$2, status=$3, version=$4,
			charge_ref=$5, deposit_hold_ref=$6, deposit_attempts=$7,
			deposit_authorized_at=$8, deposit_release_scheduled_at=$9, deposit_released_at=$10,
			pickup_confirmed_at=$11, before_photos_uploaded_at=$12, returned_by_renter_at=$13,
			return_confirmed_at=$14, after_photos_uploaded_at=$15, dispute_window_expires_at=$16,
			canceled_by=NULLIF($17, ''), canceled_reason=$18, auto_canceled=$19,
			is_disputed=$20, deposit_locked=$21,
			snap_subtotal_cents=$22, snap_renter_fee_cents=$23, snap_owner_fee_cents=$24,
			snap_owner_payout_cents=$25, snap_platform_fee_cents=$26, snap_deposit_cents=$27,
			snap_total_charge_cents=$28, snap_per_day_rental_cents=$29, snap_per_day_payout_cents=$30,
			updated_on=$31
		WHERE id=$32`

	var snapSubtotal, snapRenterFee, snapOwnerFee, snapOwnerPayout,
		snapPlatformFee, snapDeposit, snapTotalCharge,
		snapPerDayRental, snapPerDayPayout sql.NullInt64
	if t := b.Totals; t != nil {
		snapSubtotal = sql.NullInt64{Int64: t.RentalSubtotalCents, Valid: true}
		snapRenterFee = sql.NullInt64{Int64: t.RenterFeeCents, Valid: true}
		snapOwnerFee = sql.NullInt64{Int64: t.OwnerFeeCents, Valid: true}
		snapOwnerPayout = sql.NullInt64{Int64: t.OwnerPayoutCents, Valid: true}
		snapPlatformFee = sql.NullInt64{Int64: t.PlatformFeeCents, Valid: true}
		snapDeposit = sql.NullInt64{Int64: t.DepositCents, Valid: true}
		snapTotalCharge = sql.NullInt64{Int64: t.TotalChargeCents, Valid: true}
		snapPerDayRental = sql.NullInt64{Int64: t.PerDayRentalCents, Valid: true}
		snapPerDayPayout = sql.NullInt64{Int64: t.PerDayPayoutCents, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		b.StartDate, b.EndDate, b.Status, b.Version,
		b.ChargeRef, b.DepositHoldRef, b.DepositAttempts,
		b.DepositAuthorizedAt, b.DepositReleaseScheduledAt, b.DepositReleasedAt,
		b.PickupConfirmedAt, b.BeforePhotosUploadedAt, b.ReturnedByRenterAt,
		b.ReturnConfirmedAt, b.AfterPhotosUploadedAt, b.DisputeWindowExpiresAt,
		string(b.CanceledBy), b.CanceledReason, b.AutoCanceled,
		b.IsDisputed, b.DepositLocked,
		snapSubtotal, snapRenterFee, snapOwnerFee,
		snapOwnerPayout, snapPlatformFee, snapDeposit,
		snapTotalCharge, snapPerDayRental, snapPerDayPayout,
		time.Now(), b.ID,
	)
	return err
}

func (r *bookingRepository) HasOverlap(ctx context.Context, listingID int64, start, end time.Time, excludeID int64) (bool, error) {
	// Half-open overlap: existing.start < new.end AND existing.end > new.start.
	// Only CONFIRMED/PAID bookings block availability.
	query := `SELECT count(*) FROM bookings
		WHERE listing_id = $1
		  AND status IN ('CONFIRMED', 'PAID')
		  AND start_date < $2
		  AND end_date > $3
		  AND id <> $4`
	var count int
	if err := r.q.QueryRowContext(ctx, query, listingID, end, start, excludeID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *bookingRepository) listBookings(ctx context.Context, query string, args ...interface{}) ([]domain.Booking, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *bookingRepository) ListNeedingDepositAuth(ctx context.Context, today time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'PAID'
		  AND start_date <= $1
		  AND deposit_authorized_at IS NULL
		  AND deposit_attempts = 0
		ORDER BY start_date, id`
	return r.listBookings(ctx, query, today)
}

func (r *bookingRepository) ListDepositReleasable(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'COMPLETED'
		  AND deposit_hold_ref <> ''
		  AND deposit_released_at IS NULL
		  AND deposit_release_scheduled_at IS NOT NULL
		  AND deposit_release_scheduled_at <= $1
		  AND deposit_locked = false
		ORDER BY deposit_release_scheduled_at, id`
	return r.listBookings(ctx, query, now)
}

func (r *bookingRepository) ListStalePrePayment(ctx context.Context, today time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status IN ('REQUESTED', 'CONFIRMED')
		  AND start_date < $1
		ORDER BY start_date, id`
	return r.listBookings(ctx, query, today)
}

func (r *bookingRepository) CountCleanPhotos(ctx context.Context, bookingID int64, phase domain.PhotoPhase) (int, error) {
	query := `SELECT count(*) FROM booking_photos
		WHERE booking_id = $1 AND av_status = 'CLEAN' AND ($2 = '' OR phase = $2)`
	var count int
	err := r.q.QueryRowContext(ctx, query, bookingID, string(phase)).Scan(&count)
	return count, err
}

func (r *bookingRepository) AddPhoto(ctx context.Context, p *domain.BookingPhoto) error {
	query := `INSERT INTO booking_photos (booking_id, uploaded_by, role, phase, av_status, url, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	return r.q.QueryRowContext(ctx, query,
		p.BookingID, p.UploadedBy, p.Role, p.Phase, p.AVStatus, p.URL, time.Now(),
	).Scan(&p.ID)
}
