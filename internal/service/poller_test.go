package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"earn-platform/internal/model"
	"earn-platform/internal/pkg/lock"
)

func newTestPoller(env *testEnv) *StatusPoller {
	return NewStatusPoller(env.store, env.reconciler, env.registry, lock.NewKeyLock(),
		time.Hour, time.Second, time.Millisecond)
}

func TestSweepSettlesStalePendingDeposit(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))

	// The webhook never arrived, but the provider has settled.
	env.sandbox.Settle(*tx.ExternalReference)
	time.Sleep(5 * time.Millisecond)

	newTestPoller(env).Sweep(context.Background())

	got, err := env.store.Transactions().GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusCompleted, got.Status)
	require.True(t, env.account(t, acct.ID).Balance.Equal(kes(30000)))
	env.requireBalanced(t, acct.ID)
}

func TestSweepLeavesUnsettledPending(t *testing.T) {
	env := newTestEnv(t)
	acct := env.register(t, "")
	tx := env.depositPending(t, acct.ID, kes(30000))
	time.Sleep(5 * time.Millisecond)

	// The sandbox still reports pending; nothing may change.
	newTestPoller(env).Sweep(context.Background())

	got, err := env.store.Transactions().GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusPending, got.Status)
	require.True(t, env.account(t, acct.ID).Balance.IsZero())
}

func TestSweepSkipsInternalAwards(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "")

	// Internal awards are terminal on creation and never polled; the
	// signup marker from registration is the probe here.
	stale, err := env.store.Transactions().ListStalePending(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, stale)
}
