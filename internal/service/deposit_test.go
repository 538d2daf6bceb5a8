package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/payments"
)

func paidBookingForDeposit() *domain.Booking {
	b := confirmedBooking()
	b.Status = domain.BookingStatusPaid
	b.ChargeRef = "ch_test"
	return b
}

func TestAuthorizeDepositPlacesHold(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	svcs, _ := newTestServices(store, gw)

	b := paidBookingForDeposit()
	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("Update", mock.Anything, b).Return(nil)
	store.ledger.On("SumByKindAndBooking", mock.Anything, domain.TransactionKindOwnerEarning, int64(7)).
		Return(int64(0), nil)
	store.ledger.On("ExistsByKindAndRef", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	var payout int64
	store.ledger.On("CreateTransaction", mock.Anything, mock.Anything).Return(nil).
		Run(func(args mock.Arguments) {
			tx := args.Get(1).(*domain.Transaction)
			if tx.Kind == domain.TransactionKindOwnerEarning {
				payout = tx.AmountCents
			}
		})

	err := svcs.Bookings.AuthorizeDeposit(context.Background(), 7)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), b.DepositAttempts)
	assert.NotEmpty(t, b.DepositHoldRef)
	assert.NotNil(t, b.DepositAuthorizedAt)
	assert.Equal(t, int64(8500), payout)

	amount, captured, canceled := gw.HoldState(b.DepositHoldRef)
	assert.Equal(t, int64(5000), amount)
	assert.Zero(t, captured)
	assert.False(t, canceled)
}

func TestAuthorizeDepositZeroDepositAuthorizesImmediately(t *testing.T) {
	store := newMockStore()
	svcs, _ := newTestServices(store, payments.NewSandbox())

	b := paidBookingForDeposit()
	b.DepositCents = 0
	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("Update", mock.Anything, b).Return(nil)
	store.ledger.On("SumByKindAndBooking", mock.Anything, domain.TransactionKindOwnerEarning, int64(7)).
		Return(int64(0), nil)
	store.ledger.On("ExistsByKindAndRef", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	var payout int64
	store.ledger.On("CreateTransaction", mock.Anything, mock.Anything).Return(nil).
		Run(func(args mock.Arguments) {
			tx := args.Get(1).(*domain.Transaction)
			if tx.Kind == domain.TransactionKindOwnerEarning {
				payout = tx.AmountCents
			}
		})

	err := svcs.Bookings.AuthorizeDeposit(context.Background(), 7)
	assert.NoError(t, err)
	assert.NotNil(t, b.DepositAuthorizedAt)
	assert.Empty(t, b.DepositHoldRef)
	assert.Zero(t, b.DepositAttempts)
	assert.Equal(t, int64(8500), payout)
}

func TestAuthorizeDepositPayoutFailureDoesNotBlock(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	gw.ScriptError("transfer",
		payments.NewError(payments.ErrorClassTransient, "transfer", "network", nil))
	svcs, _ := newTestServices(store, gw)

	b := paidBookingForDeposit()
	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("Update", mock.Anything, b).Return(nil)
	store.ledger.On("SumByKindAndBooking", mock.Anything, domain.TransactionKindOwnerEarning, int64(7)).
		Return(int64(0), nil)

	err := svcs.Bookings.AuthorizeDeposit(context.Background(), 7)
	assert.NoError(t, err)
	assert.NotNil(t, b.DepositAuthorizedAt)
	store.ledger.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestAuthorizeDepositAlreadyAuthorizedIsNoop(t *testing.T) {
	store := newMockStore()
	svcs, _ := newTestServices(store, payments.NewSandbox())

	b := paidBookingForDeposit()
	at := testNow.Add(-time.Hour)
	b.DepositAuthorizedAt = &at
	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)

	err := svcs.Bookings.AuthorizeDeposit(context.Background(), 7)
	assert.NoError(t, err)
	store.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestAuthorizeDepositInsufficientFundsSchedulesRetry(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	gw.ScriptError("authorize_hold",
		payments.NewError(payments.ErrorClassPermanent, "authorize_hold", payments.CodeInsufficientFunds, nil))
	svcs, queue := newTestServices(store, gw)

	b := paidBookingForDeposit()
	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("Update", mock.Anything, b).Return(nil)
	store.notes.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := svcs.Bookings.AuthorizeDeposit(context.Background(), 7)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), b.DepositAttempts)
	assert.Nil(t, b.DepositAuthorizedAt)
	assert.Equal(t, 1, queue.PendingCount())
}

func TestAuthorizeDepositFinalFailureCancelsWithSplit(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	gw.ScriptError("authorize_hold",
		payments.NewError(payments.ErrorClassPermanent, "authorize_hold", payments.CodeInsufficientFunds, nil))
	svcs, queue := newTestServices(store, gw)

	b := paidBookingForDeposit()
	b.DepositAttempts = 1

	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("GetByID", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("Update", mock.Anything, b).Return(nil)
	store.ledger.On("ExistsByKindAndRef", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	amounts := map[domain.TransactionKind]int64{}
	store.ledger.On("CreateTransaction", mock.Anything, mock.Anything).Return(nil).
		Run(func(args mock.Arguments) {
			tx := args.Get(1).(*domain.Transaction)
			amounts[tx.Kind] = tx.AmountCents
		})
	store.notes.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := svcs.Bookings.AuthorizeDeposit(context.Background(), 7)
	assert.NoError(t, err)

	assert.Equal(t, domain.BookingStatusCanceled, b.Status)
	assert.Equal(t, domain.CancelActorSystem, b.CanceledBy)
	assert.Equal(t, "deposit_authorization_failed", b.CanceledReason)
	assert.True(t, b.AutoCanceled)

	// 50/30/20 of the $110 charge.
	assert.Equal(t, int64(5500), amounts[domain.TransactionKindRefund])
	assert.Equal(t, int64(3300), amounts[domain.TransactionKindOwnerEarning])
	assert.Equal(t, int64(2200), amounts[domain.TransactionKindPlatformFee])
	assert.Zero(t, queue.PendingCount())
}

func TestAuthorizeDepositTransientRollsBackAttempt(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	gw.ScriptError("authorize_hold",
		payments.NewError(payments.ErrorClassTransient, "authorize_hold", "network", nil))
	svcs, queue := newTestServices(store, gw)

	b := paidBookingForDeposit()
	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("Update", mock.Anything, b).Return(nil)

	err := svcs.Bookings.AuthorizeDeposit(context.Background(), 7)
	assert.NoError(t, err)
	assert.Zero(t, b.DepositAttempts)
	assert.Equal(t, 1, queue.PendingCount())
}

func TestReleaseDepositSkipsLockedBooking(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	svcs, _ := newTestServices(store, gw)

	ctx := context.Background()
	b := paidBookingForDeposit()
	b.Status = domain.BookingStatusCompleted
	holdRef, _ := gw.AuthorizeHold(ctx, 5000, "cus_1", "pm_1", "setup-hold")
	b.DepositHoldRef = holdRef
	b.DepositLocked = true
	sched := testNow.Add(-time.Hour)
	b.DepositReleaseScheduledAt = &sched

	store.bookings.On("GetByID", mock.Anything, int64(7)).Return(b, nil)

	err := svcs.Bookings.ReleaseDeposit(ctx, 7)
	assert.NoError(t, err)
	_, _, canceled := gw.HoldState(holdRef)
	assert.False(t, canceled)
}

func TestReleaseDepositCancelsHoldAndLogs(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	svcs, _ := newTestServices(store, gw)

	ctx := context.Background()
	b := paidBookingForDeposit()
	b.Status = domain.BookingStatusCompleted
	holdRef, _ := gw.AuthorizeHold(ctx, 5000, "cus_1", "pm_1", "setup-hold")
	b.DepositHoldRef = holdRef
	sched := testNow.Add(-time.Hour)
	b.DepositReleaseScheduledAt = &sched

	store.bookings.On("GetByID", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("Update", mock.Anything, b).Return(nil)
	store.ledger.On("ExistsByKindAndRef", mock.Anything, domain.TransactionKindDepositRelease, payments.DepositReleaseKey(7)).
		Return(false, nil)
	store.ledger.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.Transaction) bool {
		return tx.Kind == domain.TransactionKindDepositRelease && tx.AmountCents == 5000
	})).Return(nil)
	store.notes.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()

	err := svcs.Bookings.ReleaseDeposit(ctx, 7)
	assert.NoError(t, err)
	assert.NotNil(t, b.DepositReleasedAt)
	_, _, canceled := gw.HoldState(holdRef)
	assert.True(t, canceled)
}
