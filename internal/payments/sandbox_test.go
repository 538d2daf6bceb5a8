package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSandboxChargeIdempotent(t *testing.T) {
	g := NewSandbox()
	ctx := context.Background()

	key := ChargeKey(1, 0, 11000)
	ref1, err := g.Charge(ctx, 11000, "cus_1", "pm_1", key)
	assert.NoError(t, err)
	ref2, err := g.Charge(ctx, 11000, "cus_1", "pm_1", key)
	assert.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	// A different key is a different charge.
	ref3, err := g.Charge(ctx, 11000, "cus_1", "pm_1", ChargeKey(1, 1, 11000))
	assert.NoError(t, err)
	assert.NotEqual(t, ref1, ref3)
}

func TestSandboxScriptedFailure(t *testing.T) {
	g := NewSandbox()
	ctx := context.Background()

	g.ScriptError("authorize_hold", NewError(ErrorClassPermanent, "authorize_hold", CodeInsufficientFunds, nil))

	_, err := g.AuthorizeHold(ctx, 5000, "cus_1", "pm_1", DepositAuthKey(1, 1, 5000))
	assert.Error(t, err)
	assert.True(t, IsInsufficientFunds(err))
	assert.True(t, IsPermanent(err))

	// Scripted errors are consumed; the next attempt succeeds.
	ref, err := g.AuthorizeHold(ctx, 5000, "cus_1", "pm_1", DepositAuthKey(1, 2, 5000))
	assert.NoError(t, err)
	assert.NotEmpty(t, ref)
}

func TestSandboxHoldLifecycle(t *testing.T) {
	g := NewSandbox()
	ctx := context.Background()

	holdRef, err := g.AuthorizeHold(ctx, 5000, "cus_1", "pm_1", DepositAuthKey(7, 1, 5000))
	assert.NoError(t, err)

	// Partial capture, idempotent on the key.
	capKey := DepositCaptureKey(7, "dispute-3", 2000)
	_, err = g.CaptureHold(ctx, holdRef, 2000, capKey)
	assert.NoError(t, err)
	_, err = g.CaptureHold(ctx, holdRef, 2000, capKey)
	assert.NoError(t, err)

	amount, captured, canceled := g.HoldState(holdRef)
	assert.Equal(t, int64(5000), amount)
	assert.Equal(t, int64(2000), captured)
	assert.False(t, canceled)

	// Capturing beyond the remainder is a permanent failure.
	_, err = g.CaptureHold(ctx, holdRef, 4000, DepositCaptureKey(7, "dispute-3", 4000))
	assert.True(t, IsPermanent(err))

	assert.NoError(t, g.CancelHold(ctx, holdRef, DepositReleaseKey(7)))
	_, _, canceled = g.HoldState(holdRef)
	assert.True(t, canceled)
}

func TestClassOfUnclassified(t *testing.T) {
	assert.Equal(t, ErrorClassTransient, ClassOf(errors.New("connection reset")))
	assert.Equal(t, ErrorClassConfig, ClassOf(NewError(ErrorClassConfig, "charge", "bad_api_key", nil)))
}
