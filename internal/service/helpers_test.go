package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/provider"
	"earn-platform/internal/repository/memory"
)

// kes builds a base-currency amount from minor units.
func kes(units int64) money.Money {
	return money.New(units, money.KES)
}

// testParams uses the production schedule but a small team milestone so
// tests can reach it.
func testParams() Params {
	return Params{
		BaseCurrency:        money.KES,
		ActivationThreshold: kes(50000),
		ReferralReward:      kes(5000),
		CommissionSchedule:  []money.Money{kes(5000), kes(3000), kes(2000), kes(1000), kes(500)},
		TeamReward:          kes(5000),
		TeamRewardSize:      3,
		SpinMin:             kes(1000),
		SpinMax:             kes(10000),
		WithdrawalMinimum:   kes(10000),
		AmountTolerance:     1,
	}
}

type testEnv struct {
	store        *memory.Store
	params       Params
	registry     *provider.Registry
	sandbox      *provider.Sandbox
	ledger       *LedgerService
	tree         *TreeService
	reward       *RewardService
	commission   *CommissionService
	activation   *ActivationService
	registration *RegistrationService
	reconciler   *Reconciler
	deposit      *DepositService
	withdrawal   *WithdrawalService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	params := testParams()
	notifier := NewStoreNotifier(store)
	fx, err := NewStaticConverter(params.BaseCurrency, map[string]string{
		"USD": "130",
		"UGX": "0.027027",
		"TZS": "0.043478",
	})
	require.NoError(t, err)

	registry := provider.NewRegistry()
	sandbox := provider.NewSandbox(time.Hour)
	require.NoError(t, registry.Register(sandbox))

	ledger := NewLedgerService(store)
	tree := NewTreeService(store)
	reward := NewRewardService(store, ledger, params, notifier)
	commission := NewCommissionService(store, ledger, params)
	activation := NewActivationService(store, ledger, commission, params, notifier)

	return &testEnv{
		store:        store,
		params:       params,
		registry:     registry,
		sandbox:      sandbox,
		ledger:       ledger,
		tree:         tree,
		reward:       reward,
		commission:   commission,
		activation:   activation,
		registration: NewRegistrationService(store, tree, reward, params, notifier),
		reconciler:   NewReconciler(store, ledger, activation, params, notifier),
		deposit:      NewDepositService(store, ledger, registry, fx, params, time.Second),
		withdrawal:   NewWithdrawalService(store, ledger, registry, fx, params, notifier, time.Second),
	}
}

var accountSeq int

// register creates an account, optionally sponsored.
func (e *testEnv) register(t *testing.T, sponsorCode string) *model.Account {
	t.Helper()
	accountSeq++
	acct, err := e.registration.Register(context.Background(), RegisterInput{
		Email:       fmt.Sprintf("member%d@example.com", accountSeq),
		Phone:       fmt.Sprintf("+2547%08d", accountSeq),
		FullName:    fmt.Sprintf("Member %d", accountSeq),
		SponsorCode: sponsorCode,
	})
	require.NoError(t, err)
	return acct
}

// depositPending records a pending sandbox deposit and returns it.
func (e *testEnv) depositPending(t *testing.T, accountID string, amount money.Money) *model.Transaction {
	t.Helper()
	tx, err := e.deposit.Initiate(context.Background(), accountID, amount, model.ProviderSandbox, "+254700000000")
	require.NoError(t, err)
	return tx
}

// successEvent builds the provider's confirmation for a recorded intent.
func successEvent(tx *model.Transaction, amount money.Money) provider.Event {
	return provider.Event{
		Provider:          tx.Provider,
		ExternalReference: *tx.ExternalReference,
		Amount:            amount,
		Outcome:           provider.OutcomeSuccess,
	}
}

// confirmDeposit records and settles a deposit in one step.
func (e *testEnv) confirmDeposit(t *testing.T, accountID string, amount money.Money) *model.Transaction {
	t.Helper()
	tx := e.depositPending(t, accountID, amount)
	result, err := e.reconciler.Ingest(context.Background(), successEvent(tx, amount))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)
	return tx
}

// account re-reads an account.
func (e *testEnv) account(t *testing.T, id string) *model.Account {
	t.Helper()
	acct, err := e.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return acct
}

// requireBalanced asserts the wallet projection equals the ledger replay.
func (e *testEnv) requireBalanced(t *testing.T, accountID string) {
	t.Helper()
	ok, ledgerSum, balance, err := e.ledger.VerifyBalance(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, ok, "ledger sum %s disagrees with balance %s", ledgerSum, balance)
}
