package domain

import "time"

type TransactionKind string

const (
	TransactionKindCharge         TransactionKind = "CHARGE"
	TransactionKindRefund         TransactionKind = "REFUND"
	TransactionKindOwnerEarning   TransactionKind = "OWNER_EARNING"
	TransactionKindPlatformFee    TransactionKind = "PLATFORM_FEE"
	TransactionKindDepositCapture TransactionKind = "DEPOSIT_CAPTURE"
	TransactionKindDepositRelease TransactionKind = "DEPOSIT_RELEASE"
)

// Transaction is an append-only ledger entry recording one money movement.
// At most one entry may exist per (kind, external_ref) pair; that uniqueness
// is the idempotency guard for retried settlements.
type Transaction struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	BookingID   *int64          `json:"booking_id,omitempty"`
	Kind        TransactionKind `json:"kind"`
	AmountCents int64           `json:"amount_cents"` // negative for reversals
	Currency    string          `json:"currency"`
	ExternalRef string          `json:"external_ref"`
	Description string          `json:"description"`
	CreatedOn   time.Time       `json:"created_on"`
}
