package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/repository"
)

// LedgerService owns the transaction lifecycle. The ledger is append-only:
// records change status, never amount, and an account's balance is the
// signed sum of its completed records.
type LedgerService struct {
	store repository.Store
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(store repository.Store) *LedgerService {
	return &LedgerService{store: store}
}

// RecordPending appends a new pending-side record for a provider flow. The
// external reference is the merchant reference later echoed by the
// provider; the duplicate-intent guard rejects a second live record for it.
func (s *LedgerService) RecordPending(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = model.TxStatusPending
	}
	if err := s.store.Transactions().Create(ctx, tx); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// Settle moves a live record to completed and applies its signed amount to
// the wallet, in one unit of work. It returns false when another settlement
// got there first; the wallet is untouched in that case.
func (s *LedgerService) Settle(ctx context.Context, txID, reason string) (bool, error) {
	won := false
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		tx, err := st.Transactions().GetByID(ctx, txID)
		if err != nil {
			return err
		}
		ok, err := st.Transactions().Transition(ctx, txID,
			[]model.TxStatus{model.TxStatusPending, model.TxStatusProcessing},
			model.TxStatusCompleted, reason)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true
		return st.Accounts().ApplyBalanceDelta(ctx, tx.AccountID, tx.Amount, bucketForType(tx.Type))
	})
	if err != nil {
		return false, fmt.Errorf("failed to settle transaction %s: %w", txID, err)
	}
	return won, nil
}

// Fail moves a live record to failed. The wallet is untouched; a failed
// attempt may be retried under the same external reference.
func (s *LedgerService) Fail(ctx context.Context, txID, reason string) (bool, error) {
	ok, err := s.store.Transactions().Transition(ctx, txID,
		[]model.TxStatus{model.TxStatusPending, model.TxStatusProcessing},
		model.TxStatusFailed, reason)
	if err != nil {
		return false, fmt.Errorf("failed to fail transaction %s: %w", txID, err)
	}
	return ok, nil
}

// Reject moves a not-yet-processing record to rejected.
func (s *LedgerService) Reject(ctx context.Context, txID, reason string) (bool, error) {
	ok, err := s.store.Transactions().Transition(ctx, txID,
		[]model.TxStatus{model.TxStatusPending, model.TxStatusAdminApproval},
		model.TxStatusRejected, reason)
	if err != nil {
		return false, fmt.Errorf("failed to reject transaction %s: %w", txID, err)
	}
	return ok, nil
}

// Award credits (or, for reversals, debits) an engine-generated amount
// exactly once. The idempotency key is the deterministic reference: a
// second award under the same reference is a no-op reporting false.
func (s *LedgerService) Award(ctx context.Context, accountID string, txType model.TxType, amount money.Money, reference, description string) (bool, error) {
	awarded := false
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		now := time.Now()
		tx := &model.Transaction{
			ID:                uuid.NewString(),
			AccountID:         accountID,
			Type:              txType,
			Amount:            amount,
			Provider:          model.ProviderInternal,
			ExternalReference: &reference,
			Status:            model.TxStatusCompleted,
			Description:       description,
			CompletedAt:       &now,
		}
		if err := st.Transactions().Create(ctx, tx); err != nil {
			return err
		}
		awarded = true
		return st.Accounts().ApplyBalanceDelta(ctx, accountID, amount, bucketForType(txType))
	})
	if errors.Is(err, repository.ErrDuplicateReference) {
		log.Debug().
			Str("account_id", accountID).
			Str("reference", reference).
			Msg("Award already paid, skipping")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to award %s to %s: %w", reference, accountID, err)
	}
	return awarded, nil
}

// VerifyBalance replays the ledger against the wallet projection. A
// mismatch means a completed record and its balance delta diverged.
func (s *LedgerService) VerifyBalance(ctx context.Context, accountID string) (bool, money.Money, money.Money, error) {
	var (
		ledgerSum money.Money
		balance   money.Money
	)
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		acct, err := st.Accounts().GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		sum, err := st.Transactions().SumCompleted(ctx, accountID)
		if err != nil {
			return err
		}
		balance = acct.Balance
		ledgerSum = money.New(sum, acct.Balance.Currency())
		return nil
	})
	if err != nil {
		return false, money.Money{}, money.Money{}, err
	}
	return ledgerSum.Equal(balance), ledgerSum, balance, nil
}

// bucketForType maps a transaction type to the cumulative earnings bucket
// its settlement accrues to.
func bucketForType(t model.TxType) model.EarningsBucket {
	switch t {
	case model.TxTypeReferralReward:
		return model.BucketReferral
	case model.TxTypeBinaryCommission:
		return model.BucketBinary
	case model.TxTypeTask, model.TxTypeTaskRefund:
		return model.BucketTask
	case model.TxTypeTeamReward:
		return model.BucketTeam
	default:
		return model.BucketNone
	}
}
