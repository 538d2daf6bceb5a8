package payments

import "fmt"

// Idempotency keys are derived deterministically from aggregate ids, the
// operation, and the amount, so a retry after a crash reuses the same key and
// the provider deduplicates the movement. Keys are the correctness mechanism
// for retries across process restarts; row locks only serialize concurrent
// writers within one.

// ChargeKey covers the rental charge for one booking at one version/amount.
func ChargeKey(bookingID int64, version int32, amountCents int64) string {
	return fmt.Sprintf("bk-%d-charge-v%d-%d", bookingID, version, amountCents)
}

// LateFeeKey covers the additional overdue-days charge.
func LateFeeKey(bookingID int64, extraDays int, amountCents int64) string {
	return fmt.Sprintf("bk-%d-latefee-%dd-%d", bookingID, extraDays, amountCents)
}

// DepositAuthKey covers one deposit authorization attempt. The attempt number
// is part of the key: a second attempt after an insufficient-funds decline is
// a genuinely new authorization, not a retry of the first.
func DepositAuthKey(bookingID int64, attempt int32, amountCents int64) string {
	return fmt.Sprintf("bk-%d-depauth-a%d-%d", bookingID, attempt, amountCents)
}

// DepositCaptureKey covers a deposit capture for a booking-level or
// dispute-level scope.
func DepositCaptureKey(bookingID int64, scope string, amountCents int64) string {
	return fmt.Sprintf("bk-%d-depcap-%s-%d", bookingID, scope, amountCents)
}

// DepositReleaseKey covers releasing the deposit hold.
func DepositReleaseKey(bookingID int64) string {
	return fmt.Sprintf("bk-%d-deprelease", bookingID)
}

// RefundKey covers a refund; scope is "booking" for cancellation refunds or
// "dispute-<id>" for dispute resolutions.
func RefundKey(bookingID int64, scope string, amountCents int64) string {
	return fmt.Sprintf("bk-%d-refund-%s-%d", bookingID, scope, amountCents)
}

// TransferKey covers an owner payout or damage-award transfer.
func TransferKey(bookingID int64, scope string, amountCents int64) string {
	return fmt.Sprintf("bk-%d-transfer-%s-%d", bookingID, scope, amountCents)
}

// DisputeScope builds the scope fragment for dispute-level keys.
func DisputeScope(disputeID int64) string {
	return fmt.Sprintf("dispute-%d", disputeID)
}

// OwnerDestination is the connected-account destination for an owner.
func OwnerDestination(ownerID int64) string {
	return fmt.Sprintf("owner-%d", ownerID)
}
