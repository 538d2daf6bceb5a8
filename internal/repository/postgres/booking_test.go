package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"gearshare-backend/internal/domain"
)

func bookingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "listing_id", "owner_id", "renter_id", "start_date", "end_date", "status", "version",
		"day_rate_cents", "deposit_cents", "customer_ref", "payment_method_ref", "charge_ref", "deposit_hold_ref",
		"deposit_attempts", "deposit_authorized_at", "deposit_release_scheduled_at", "deposit_released_at",
		"pickup_confirmed_at", "before_photos_uploaded_at", "returned_by_renter_at", "return_confirmed_at",
		"after_photos_uploaded_at", "dispute_window_expires_at",
		"canceled_by", "canceled_reason", "auto_canceled", "is_disputed", "deposit_locked",
		"snap_subtotal_cents", "snap_renter_fee_cents", "snap_owner_fee_cents", "snap_owner_payout_cents",
		"snap_platform_fee_cents", "snap_deposit_cents", "snap_total_charge_cents",
		"snap_per_day_rental_cents", "snap_per_day_payout_cents",
		"created_on", "updated_on",
	})
}

func TestBookingRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewBookingRepository(db)
	ctx := context.Background()
	now := time.Now()
	start := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)

	t.Run("WithTotalsSnapshot", func(t *testing.T) {
		rows := bookingRows().AddRow(
			int64(7), int64(3), int64(2), int64(1), start, end, "CONFIRMED", int32(1),
			int64(2000), int64(5000), "cus_1", "pm_1", "", "",
			int32(0), nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil,
			"", "", false, false, false,
			int64(10000), int64(1000), int64(1500), int64(8500),
			int64(2500), int64(5000), int64(11000),
			int64(2000), int64(1700),
			now, now,
		)
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(rows)

		b, err := repo.GetByID(ctx, 7)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), b.ID)
		assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
		if assert.NotNil(t, b.Totals) {
			assert.Equal(t, int64(11000), b.Totals.TotalChargeCents)
			assert.Equal(t, int64(8500), b.Totals.OwnerPayoutCents)
		}
	})

	t.Run("WithoutTotalsSnapshot", func(t *testing.T) {
		rows := bookingRows().AddRow(
			int64(8), int64(3), int64(2), int64(1), start, end, "REQUESTED", int32(0),
			int64(2000), int64(5000), "cus_1", "pm_1", "", "",
			int32(0), nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil,
			"", "", false, false, false,
			nil, nil, nil, nil,
			nil, nil, nil,
			nil, nil,
			now, now,
		)
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs(int64(8)).
			WillReturnRows(rows)

		b, err := repo.GetByID(ctx, 8)
		assert.NoError(t, err)
		assert.Nil(t, b.Totals)
	})
}

func TestBookingRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewBookingRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		b := &domain.Booking{
			ListingID:        3,
			OwnerID:          2,
			RenterID:         1,
			StartDate:        time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
			EndDate:          time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC),
			Status:           domain.BookingStatusRequested,
			DayRateCents:     2000,
			DepositCents:     5000,
			CustomerRef:      "cus_1",
			PaymentMethodRef: "pm_1",
		}

		mock.ExpectQuery("INSERT INTO bookings").
			WithArgs(b.ListingID, b.OwnerID, b.RenterID, b.StartDate, b.EndDate, b.Status, b.Version,
				b.DayRateCents, b.DepositCents, b.CustomerRef, b.PaymentMethodRef, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		err := repo.Create(ctx, b)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), b.ID)
	})
}

func TestBookingRepository_HasOverlap(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewBookingRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)

	t.Run("Overlap", func(t *testing.T) {
		// The interval is half-open, so the query compares start < $end
		// and end > $start.
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings").
			WithArgs(int64(3), end, start, int64(0)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		overlap, err := repo.HasOverlap(ctx, 3, start, end, 0)
		assert.NoError(t, err)
		assert.True(t, overlap)
	})

	t.Run("NoOverlap", func(t *testing.T) {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings").
			WithArgs(int64(3), end, start, int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		overlap, err := repo.HasOverlap(ctx, 3, start, end, 7)
		assert.NoError(t, err)
		assert.False(t, overlap)
	})
}

func TestBookingRepository_CountCleanPhotos(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewBookingRepository(db)
	ctx := context.Background()

	t.Run("PhaseFiltered", func(t *testing.T) {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM booking_photos").
			WithArgs(int64(7), "BEFORE").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		n, err := repo.CountCleanPhotos(ctx, 7, domain.PhotoPhaseBefore)
		assert.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("AnyPhase", func(t *testing.T) {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM booking_photos").
			WithArgs(int64(7), "").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		n, err := repo.CountCleanPhotos(ctx, 7, "")
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestBookingRepository_ListStalePrePayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewBookingRepository(db)
	ctx := context.Background()
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		rows := bookingRows().AddRow(
			int64(5), int64(3), int64(2), int64(1),
			time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
			"REQUESTED", int32(0),
			int64(2000), int64(5000), "cus_1", "pm_1", "", "",
			int32(0), nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil,
			"", "", false, false, false,
			nil, nil, nil, nil,
			nil, nil, nil,
			nil, nil,
			now, now,
		)
		mock.ExpectQuery("SELECT (.+) FROM bookings").
			WithArgs(today).
			WillReturnRows(rows)

		bookings, err := repo.ListStalePrePayment(ctx, today)
		assert.NoError(t, err)
		assert.Len(t, bookings, 1)
		assert.Equal(t, int64(5), bookings[0].ID)
	})
}
