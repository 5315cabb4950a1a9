package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

func TestAwardPaysExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")

	paid, err := env.ledger.Award(context.Background(), acct.ID,
		model.TxTypeTeamReward, kes(5000), "team:"+acct.ID, "milestone")
	require.NoError(t, err)
	require.True(t, paid)

	paid, err = env.ledger.Award(context.Background(), acct.ID,
		model.TxTypeTeamReward, kes(5000), "team:"+acct.ID, "milestone")
	require.NoError(t, err)
	require.False(t, paid)

	got := env.account(t, acct.ID)
	require.True(t, got.Balance.Equal(kes(5000)))
	require.True(t, got.TeamEarnings.Equal(kes(5000)))
	env.requireBalanced(t, acct.ID)
}

func TestAwardConcurrentSameReference(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := env.ledger.Award(context.Background(), acct.ID,
				model.TxTypeSpinAndWin, kes(2500), "spin:"+acct.ID, "bonus")
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(2500)))
	env.requireBalanced(t, acct.ID)
}

func TestFailedReferenceIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")

	ref := uuid.NewString()
	first := &model.Transaction{
		AccountID:         acct.ID,
		Type:              model.TxTypeDeposit,
		Amount:            kes(30000),
		Provider:          model.ProviderSandbox,
		ExternalReference: &ref,
	}
	require.NoError(t, env.ledger.RecordPending(context.Background(), first))

	// A second live record under the same reference is a duplicate intent.
	dup := &model.Transaction{
		AccountID:         acct.ID,
		Type:              model.TxTypeDeposit,
		Amount:            kes(30000),
		Provider:          model.ProviderSandbox,
		ExternalReference: &ref,
	}
	err := env.ledger.RecordPending(context.Background(), dup)
	require.ErrorIs(t, err, repository.ErrDuplicateReference)

	// Once the first attempt fails, the reference is free again.
	won, err := env.ledger.Fail(context.Background(), first.ID, "declined")
	require.NoError(t, err)
	require.True(t, won)

	retry := &model.Transaction{
		AccountID:         acct.ID,
		Type:              model.TxTypeDeposit,
		Amount:            kes(30000),
		Provider:          model.ProviderSandbox,
		ExternalReference: &ref,
	}
	require.NoError(t, env.ledger.RecordPending(context.Background(), retry))
}

func TestSettleAppliesDeltaOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))

	won, err := env.ledger.Settle(context.Background(), tx.ID, "")
	require.NoError(t, err)
	require.True(t, won)

	won, err = env.ledger.Settle(context.Background(), tx.ID, "")
	require.NoError(t, err)
	require.False(t, won)

	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(30000)))
	env.requireBalanced(t, acct.ID)
}

func TestRejectOnlyBeforeProcessing(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))

	ok, err := env.store.Transactions().Transition(context.Background(), tx.ID,
		[]model.TxStatus{model.TxStatusPending}, model.TxStatusProcessing, "")
	require.NoError(t, err)
	require.True(t, ok)

	won, err := env.ledger.Reject(context.Background(), tx.ID, "operator cancel")
	require.NoError(t, err)
	require.False(t, won)
}

// TestBalanceEqualsCompletedSum drives a random mix of settled deposits,
// failed attempts and internal awards, then replays the ledger: the wallet
// projection must equal the signed sum of completed records throughout.
func TestBalanceEqualsCompletedSum(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		env := newTestEnv(t)
		acct := env.register(t, "")
		ctx := context.Background()

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			amount := kes(rapid.Int64Range(1, 100000).Draw(rt, "amount"))
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				tx := env.depositPending(t, acct.ID, amount)
				_, err := env.ledger.Settle(ctx, tx.ID, "")
				if err != nil {
					rt.Fatalf("settle: %v", err)
				}
			case 1:
				tx := env.depositPending(t, acct.ID, amount)
				if _, err := env.ledger.Fail(ctx, tx.ID, "declined"); err != nil {
					rt.Fatalf("fail: %v", err)
				}
			case 2:
				ref := uuid.NewString()
				if _, err := env.ledger.Award(ctx, acct.ID, model.TxTypeTask, amount, ref, "task"); err != nil {
					rt.Fatalf("award: %v", err)
				}
			}

			ok, ledgerSum, balance, err := env.ledger.VerifyBalance(ctx, acct.ID)
			if err != nil {
				rt.Fatalf("verify: %v", err)
			}
			if !ok {
				rt.Fatalf("ledger sum %s disagrees with balance %s after step %d", ledgerSum, balance, i)
			}
		}
	})
}
