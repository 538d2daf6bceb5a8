// Package payments defines the capability boundary to the external payment
// provider. The core never sees a raw provider error: every failure is
// classified as transient, config, or permanent, and every operation takes a
// caller-supplied idempotency key so a retry has no effect beyond its first
// successful application.
package payments

import (
	"context"
	"errors"
	"fmt"
)

type ErrorClass string

const (
	ErrorClassTransient ErrorClass = "TRANSIENT"
	ErrorClassConfig    ErrorClass = "CONFIG"
	ErrorClassPermanent ErrorClass = "PERMANENT"
)

// Well-known decline codes surfaced by providers.
const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeCardDeclined      = "card_declined"
	CodeHoldNotFound      = "hold_not_found"
)

// Error is a classified gateway failure.
type Error struct {
	Class ErrorClass
	Code  string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s (%s): %v", e.Op, e.Code, e.Class, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s (%s)", e.Op, e.Code, e.Class)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified gateway error.
func NewError(class ErrorClass, op, code string, err error) *Error {
	return &Error{Class: class, Op: op, Code: code, Err: err}
}

// ClassOf extracts the error class, defaulting to transient for unclassified
// failures (network-level errors the client could not attribute).
func ClassOf(err error) ErrorClass {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ErrorClassTransient
}

func IsTransient(err error) bool { return err != nil && ClassOf(err) == ErrorClassTransient }
func IsConfig(err error) bool    { return err != nil && ClassOf(err) == ErrorClassConfig }
func IsPermanent(err error) bool { return err != nil && ClassOf(err) == ErrorClassPermanent }

// IsInsufficientFunds reports a permanent decline for lack of funds.
func IsInsufficientFunds(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Code == CodeInsufficientFunds
}

// Gateway is the payment provider capability set. All amounts are minor
// units (cents). Reference ids returned on success identify the provider-side
// object and are recorded on bookings and ledger entries.
type Gateway interface {
	// Charge debits the customer's payment method immediately.
	Charge(ctx context.Context, amountCents int64, customerRef, methodRef, idempotencyKey string) (string, error)

	// AuthorizeHold places an authorized-but-uncaptured reservation.
	AuthorizeHold(ctx context.Context, amountCents int64, customerRef, methodRef, idempotencyKey string) (string, error)

	// CaptureHold captures up to the held amount; the remainder is released.
	CaptureHold(ctx context.Context, holdRef string, amountCents int64, idempotencyKey string) (string, error)

	// CancelHold releases the full hold without capturing.
	CancelHold(ctx context.Context, holdRef string, idempotencyKey string) error

	// Refund returns funds against an earlier charge.
	Refund(ctx context.Context, chargeRef string, amountCents int64, idempotencyKey string) (string, error)

	// Transfer moves funds to a connected destination account.
	Transfer(ctx context.Context, destinationRef string, amountCents int64, idempotencyKey string) (string, error)
}
