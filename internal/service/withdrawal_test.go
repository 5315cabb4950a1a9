package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/provider"
)

func TestWithdrawalRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := activatedAccount(t, env)

	_, err := env.withdrawal.Request(ctx, acct.ID, kes(0), model.ProviderMpesa, "+254700000000")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = env.withdrawal.Request(ctx, acct.ID, kes(9999), model.ProviderMpesa, "+254700000000")
	require.ErrorIs(t, err, ErrBelowMinimum)

	_, err = env.withdrawal.Request(ctx, acct.ID, kes(60000), model.ProviderMpesa, "+254700000000")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	unactivated := env.register(t, "")
	_, err = env.withdrawal.Request(ctx, unactivated.ID, kes(10000), model.ProviderMpesa, "+254700000000")
	require.ErrorIs(t, err, ErrNotActivated)
}

func TestWithdrawalConvertsToBaseCurrency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := activatedAccount(t, env)

	// 1.00 USD converts at the configured 130 rate.
	tx, err := env.withdrawal.Request(ctx, acct.ID, money.New(100, "USD"), model.ProviderPaypal, "payee@example.com")
	require.NoError(t, err)
	require.True(t, tx.Amount.Equal(kes(13000).Neg()))
	require.Equal(t, model.TxStatusAdminApproval, tx.Status)
}

func TestWithdrawalApproveAndSettle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := activatedAccount(t, env)

	tx, err := env.withdrawal.Request(ctx, acct.ID, kes(20000), model.ProviderSandbox, "+254700000000")
	require.NoError(t, err)

	// Requesting holds nothing; the wallet moves at settlement.
	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(50000)))

	require.NoError(t, env.withdrawal.Approve(ctx, tx.ID))
	processing, err := env.store.Transactions().GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusProcessing, processing.Status)

	result, err := env.reconciler.Ingest(ctx, provider.Event{
		Provider:          tx.Provider,
		ExternalReference: *tx.ExternalReference,
		Amount:            kes(20000),
		Outcome:           provider.OutcomeSuccess,
	})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	got := env.account(t, acct.ID)
	require.True(t, got.Balance.Equal(kes(30000)))
	require.True(t, got.TotalWithdrawn.Equal(kes(20000)))
	env.requireBalanced(t, acct.ID)
}

func TestWithdrawalRejectLeavesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := activatedAccount(t, env)

	tx, err := env.withdrawal.Request(ctx, acct.ID, kes(20000), model.ProviderMpesa, "+254700000000")
	require.NoError(t, err)

	require.NoError(t, env.withdrawal.Reject(ctx, tx.ID, "suspicious destination"))

	rejected, err := env.store.Transactions().GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusRejected, rejected.Status)
	require.Equal(t, "suspicious destination", rejected.Reason)
	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(50000)))
	env.requireBalanced(t, acct.ID)
}

func TestWithdrawalSettlementCannotOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := activatedAccount(t, env)

	// Both requests fit the 500.00 balance individually, and both pass
	// approval because nothing is held until settlement.
	first, err := env.withdrawal.Request(ctx, acct.ID, kes(40000), model.ProviderSandbox, "+254700000000")
	require.NoError(t, err)
	second, err := env.withdrawal.Request(ctx, acct.ID, kes(30000), model.ProviderSandbox, "+254700000001")
	require.NoError(t, err)
	require.NoError(t, env.withdrawal.Approve(ctx, first.ID))
	require.NoError(t, env.withdrawal.Approve(ctx, second.ID))

	result, err := env.reconciler.Ingest(ctx, successEvent(first, kes(40000)))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	// The second settlement no longer covers; it must fail, not overdraw.
	result, err = env.reconciler.Ingest(ctx, successEvent(second, kes(30000)))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	failed, err := env.store.Transactions().GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusFailed, failed.Status)
	require.Equal(t, "insufficient balance at settlement", failed.Reason)

	got := env.account(t, acct.ID)
	require.False(t, got.Balance.IsNegative())
	require.True(t, got.Balance.Equal(kes(10000)))
	require.True(t, got.TotalWithdrawn.Equal(kes(40000)))
	env.requireBalanced(t, acct.ID)
}

func TestWithdrawalApproveReRejectsWhenBalanceGone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := activatedAccount(t, env)

	tx, err := env.withdrawal.Request(ctx, acct.ID, kes(40000), model.ProviderSandbox, "+254700000000")
	require.NoError(t, err)

	// A competing withdrawal drains the balance before approval.
	other, err := env.withdrawal.Request(ctx, acct.ID, kes(30000), model.ProviderSandbox, "+254700000001")
	require.NoError(t, err)
	require.NoError(t, env.withdrawal.Approve(ctx, other.ID))
	_, err = env.reconciler.Ingest(ctx, provider.Event{
		Provider:          other.Provider,
		ExternalReference: *other.ExternalReference,
		Amount:            kes(30000),
		Outcome:           provider.OutcomeSuccess,
	})
	require.NoError(t, err)

	err = env.withdrawal.Approve(ctx, tx.ID)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	rejected, err := env.store.Transactions().GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusRejected, rejected.Status)
}
