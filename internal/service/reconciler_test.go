package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"earn-platform/internal/model"
	"earn-platform/internal/provider"
)

func TestIngestSettlesDeposit(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")

	tx := env.depositPending(t, acct.ID, kes(30000))

	result, err := env.reconciler.Ingest(context.Background(), successEvent(tx, kes(30000)))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(30000)))
	env.requireBalanced(t, acct.ID)

	settled, err := env.store.Transactions().GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusCompleted, settled.Status)
	require.NotNil(t, settled.CompletedAt)
}

func TestIngestDuplicateEventIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))
	ev := successEvent(tx, kes(30000))

	result, err := env.reconciler.Ingest(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	// The provider retries the callback; the wallet must not move again.
	result, err = env.reconciler.Ingest(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, ResultAlreadyTerminal, result)

	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(30000)))
	env.requireBalanced(t, acct.ID)
}

func TestIngestConcurrentDuplicatesCreditOnce(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))
	ev := successEvent(tx, kes(30000))

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := env.reconciler.Ingest(context.Background(), ev)
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(30000)))
	env.requireBalanced(t, acct.ID)
}

func TestIngestOrphanedEvent(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.reconciler.Ingest(context.Background(), provider.Event{
		Provider:          model.ProviderSandbox,
		ExternalReference: "never-issued",
		Amount:            kes(30000),
		Outcome:           provider.OutcomeSuccess,
	})
	require.NoError(t, err)
	require.Equal(t, ResultOrphaned, result)
}

func TestIngestFailureReleasesReference(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))

	result, err := env.reconciler.Ingest(context.Background(), provider.Event{
		Provider:          tx.Provider,
		ExternalReference: *tx.ExternalReference,
		Outcome:           provider.OutcomeFailure,
		Reason:            "cancelled by user",
	})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	require.True(t, env.account(t, acct.ID).Balance.IsZero())

	failed, err := env.store.Transactions().GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusFailed, failed.Status)
	require.Equal(t, "cancelled by user", failed.Reason)

	// A success for a failed reference finds no live record.
	result, err = env.reconciler.Ingest(context.Background(), successEvent(tx, kes(30000)))
	require.NoError(t, err)
	require.Equal(t, ResultOrphaned, result)
}

func TestIngestLateFailureAfterSettlement(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.confirmDeposit(t, acct.ID, kes(30000))

	// An out-of-order failure arriving after settlement changes nothing.
	result, err := env.reconciler.Ingest(context.Background(), provider.Event{
		Provider:          tx.Provider,
		ExternalReference: *tx.ExternalReference,
		Outcome:           provider.OutcomeFailure,
		Reason:            "timeout",
	})
	require.NoError(t, err)
	require.Equal(t, ResultAlreadyTerminal, result)

	settled, err := env.store.Transactions().GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusCompleted, settled.Status)
	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(30000)))
}

func TestIngestPendingOutcome(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))

	result, err := env.reconciler.Ingest(context.Background(), provider.Event{
		Provider:          tx.Provider,
		ExternalReference: *tx.ExternalReference,
		Outcome:           provider.OutcomePending,
	})
	require.NoError(t, err)
	require.Equal(t, ResultPending, result)

	still, err := env.store.Transactions().GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusPending, still.Status)
}

func TestIngestAmountWithinToleranceCreditsIntent(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))

	// Provider confirms one minor unit less; the intent amount is credited.
	result, err := env.reconciler.Ingest(context.Background(), successEvent(tx, kes(29999)))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(30000)))
	env.requireBalanced(t, acct.ID)
}

func TestIngestAmountMismatchFailsTransaction(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))

	result, err := env.reconciler.Ingest(context.Background(), successEvent(tx, kes(20000)))
	require.NoError(t, err)
	require.Equal(t, ResultAmountMismatch, result)

	require.True(t, env.account(t, acct.ID).Balance.IsZero())

	failed, err := env.store.Transactions().GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusFailed, failed.Status)
	require.Contains(t, failed.Reason, "amount_mismatch")
}

func TestIngestZeroEventAmountSkipsCheck(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))

	// Some rails omit the amount in callbacks; the recorded intent rules.
	ev := successEvent(tx, kes(0))
	result, err := env.reconciler.Ingest(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)
	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(30000)))
}

func TestConcurrentDepositsActivateOnce(t *testing.T) {
	env := newTestEnv(t)

	sponsor := env.register(t, "")
	env.confirmDeposit(t, sponsor.ID, kes(50000))
	require.True(t, env.account(t, sponsor.ID).Activated)

	member := env.register(t, sponsor.ReferralCode)
	tx1 := env.depositPending(t, member.ID, kes(30000))
	tx2 := env.depositPending(t, member.ID, kes(25000))

	var g errgroup.Group
	g.Go(func() error {
		_, err := env.reconciler.Ingest(context.Background(), successEvent(tx1, kes(30000)))
		return err
	})
	g.Go(func() error {
		_, err := env.reconciler.Ingest(context.Background(), successEvent(tx2, kes(25000)))
		return err
	})
	require.NoError(t, g.Wait())

	got := env.account(t, member.ID)
	require.True(t, got.Activated)
	require.True(t, got.Balance.Equal(kes(55000)))
	env.requireBalanced(t, member.ID)

	// The referral reward landed exactly once, no matter which deposit won
	// the activation race.
	reward, err := env.store.Transactions().GetByReference(context.Background(),
		model.ProviderInternal, "referral:"+member.ID)
	require.NoError(t, err)
	require.True(t, reward.Amount.Equal(env.params.ReferralReward))

	sponsorAfter := env.account(t, sponsor.ID)
	require.True(t, sponsorAfter.ReferralEarnings.Equal(env.params.ReferralReward))
	env.requireBalanced(t, sponsor.ID)
}
