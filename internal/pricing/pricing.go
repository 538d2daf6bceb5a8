// Package pricing computes the booking totals snapshot and overdue math.
package pricing

import (
	"fmt"
	"time"

	"gearshare-backend/internal/config"
	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/money"
)

// Days returns the whole rental days in the half-open range [start, end).
func Days(start, end time.Time) int64 {
	return int64(end.Sub(start).Hours() / 24)
}

// ComputeTotals builds the money snapshot fixed at confirmation time.
// The renter is charged subtotal + renter fee; the deposit is a separate
// hold placed on the start day. The owner payout is the subtotal minus the
// owner-side fee, and the platform keeps both fees.
func ComputeTotals(b *domain.Booking, m config.MarketplaceConfig) (*domain.BookingTotals, error) {
	days := Days(b.StartDate, b.EndDate)
	if days <= 0 {
		return nil, fmt.Errorf("booking %d: end date must be after start date", b.ID)
	}
	if b.DayRateCents <= 0 {
		return nil, fmt.Errorf("booking %d: day rate must be positive", b.ID)
	}

	subtotal := b.DayRateCents * days
	renterFee := money.Percent(subtotal, m.RenterFeePercent)
	ownerFee := money.Percent(subtotal, m.OwnerFeePercent)

	return &domain.BookingTotals{
		RentalSubtotalCents: subtotal,
		RenterFeeCents:      renterFee,
		OwnerFeeCents:       ownerFee,
		OwnerPayoutCents:    subtotal - ownerFee,
		PlatformFeeCents:    renterFee + ownerFee,
		DepositCents:        b.DepositCents,
		TotalChargeCents:    subtotal + renterFee,
		PerDayRentalCents:   b.DayRateCents + money.Percent(b.DayRateCents, m.RenterFeePercent),
		PerDayPayoutCents:   b.DayRateCents - money.Percent(b.DayRateCents, m.OwnerFeePercent),
	}, nil
}

// ExtraDaysForLate returns the billable overdue days at `today`: zero when the
// booking is not past its end date, otherwise clamped to [1, maxDays].
func ExtraDaysForLate(today time.Time, b *domain.Booking, maxDays int) int {
	overdue := int(today.Sub(b.EndDate).Hours() / 24)
	if overdue <= 0 {
		return 0
	}
	if overdue > maxDays {
		return maxDays
	}
	return overdue
}
