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

func TestComputeDepositFailureSplitsCharge(t *testing.T) {
	store := newMockStore()
	svcs, _ := newTestServices(store, payments.NewSandbox())

	b := confirmedBooking()
	b.Status = domain.BookingStatusPaid
	b.ChargeRef = "ch_test"

	st := svcs.Settlements.ComputeDepositFailure(b)
	assert.Equal(t, int64(5500), st.RefundCents)
	assert.Equal(t, int64(3300), st.OwnerTransferCents)
	assert.Equal(t, int64(2200), st.PlatformCents)
	assert.Equal(t, int64(11000), st.RefundCents+st.OwnerTransferCents+st.PlatformCents)
}

func TestComputeDepositFailureWithoutChargeHasNoLegs(t *testing.T) {
	store := newMockStore()
	svcs, _ := newTestServices(store, payments.NewSandbox())

	b := confirmedBooking()
	st := svcs.Settlements.ComputeDepositFailure(b)
	assert.Zero(t, st.RefundCents)
	assert.Zero(t, st.OwnerTransferCents)
	assert.Zero(t, st.PlatformCents)
}

func TestComputeCancellationPrePaymentIsFree(t *testing.T) {
	store := newMockStore()
	svcs, _ := newTestServices(store, payments.NewSandbox())

	b := confirmedBooking()
	st := svcs.Settlements.ComputeCancellation(b, domain.CancelActorOwner, testNow)
	assert.Zero(t, st.RefundCents)
	assert.Zero(t, st.OwnerTransferCents)
	assert.True(t, st.ReleaseDeposit)
}

func TestComputeCancellationRenterAfterStart(t *testing.T) {
	store := newMockStore()
	svcs, _ := newTestServices(store, payments.NewSandbox())

	b := confirmedBooking()
	b.Status = domain.BookingStatusPaid
	b.ChargeRef = "ch_test"
	at := b.StartDate.Add(24 * time.Hour)

	st := svcs.Settlements.ComputeCancellation(b, domain.CancelActorRenter, at)
	assert.Zero(t, st.RefundCents)
	assert.Equal(t, int64(8500), st.OwnerTransferCents)
	assert.Equal(t, int64(2500), st.PlatformCents)
}

func TestApplySkipsExistingLedgerEntries(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	svcs, _ := newTestServices(store, gw)

	b := confirmedBooking()
	b.Status = domain.BookingStatusPaid
	b.ChargeRef = "ch_test"

	store.bookings.On("GetByID", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("GetByIDForUpdate", mock.Anything, int64(7)).Return(b, nil)
	store.bookings.On("Update", mock.Anything, b).Return(nil)
	store.ledger.On("ExistsByKindAndRef", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	st := Settlement{BookingID: 7, Scope: "booking", RefundCents: 11000}
	err := svcs.Settlements.Apply(context.Background(), st, nil)
	assert.NoError(t, err)
	store.ledger.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestResolutionCapsRefundAndCapture(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	svcs, _ := newTestServices(store, gw)

	ctx := context.Background()
	b := confirmedBooking()
	b.Status = domain.BookingStatusCompleted
	b.ChargeRef = "ch_test"
	holdRef, _ := gw.AuthorizeHold(ctx, 5000, "cus_1", "pm_1", "setup-hold")
	b.DepositHoldRef = holdRef

	d := &domain.DisputeCase{
		ID:                  4,
		BookingID:           7,
		RefundAmountCents:   999999,
		DepositCaptureCents: 999999,
	}

	st := svcs.Settlements.ComputeResolution(d, b)
	assert.Equal(t, int64(11000), st.RefundCents)
	assert.Equal(t, int64(5000), st.DepositCaptureCents)
}

func TestTransferOwnerPayoutTopsUpDiff(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	svcs, _ := newTestServices(store, gw)

	b := confirmedBooking()
	store.ledger.On("SumByKindAndBooking", mock.Anything, domain.TransactionKindOwnerEarning, int64(7)).
		Return(int64(3300), nil)
	store.ledger.On("ExistsByKindAndRef", mock.Anything, domain.TransactionKindOwnerEarning, mock.Anything).
		Return(false, nil)
	store.ledger.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.Transaction) bool {
		return tx.Kind == domain.TransactionKindOwnerEarning && tx.AmountCents == 5200
	})).Return(nil)

	err := svcs.Settlements.TransferOwnerPayout(context.Background(), b, 8500, "booking")
	assert.NoError(t, err)
	store.assertExpectations(t)
}

func TestTransferOwnerPayoutAlreadySettledIsNoop(t *testing.T) {
	store := newMockStore()
	gw := payments.NewSandbox()
	svcs, _ := newTestServices(store, gw)

	b := confirmedBooking()
	store.ledger.On("SumByKindAndBooking", mock.Anything, domain.TransactionKindOwnerEarning, int64(7)).
		Return(int64(8500), nil)

	err := svcs.Settlements.TransferOwnerPayout(context.Background(), b, 8500, "booking")
	assert.NoError(t, err)
	store.ledger.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}
