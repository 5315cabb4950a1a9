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
	"earn-platform/internal/provider"
	"earn-platform/internal/repository"
)

// WithdrawalService runs the admin-gated payout flow: request, approve or
// reject, then provider settlement. The wallet is debited at settlement,
// when the withdrawal record completes; until then the amount is only an
// intent, and the settlement unit of work re-verifies the balance covers
// the debit.
type WithdrawalService struct {
	store           repository.Store
	ledger          *LedgerService
	registry        *provider.Registry
	fx              Converter
	params          Params
	notifier        Notifier
	initiateTimeout time.Duration
}

// NewWithdrawalService creates a new WithdrawalService instance.
func NewWithdrawalService(
	store repository.Store,
	ledger *LedgerService,
	registry *provider.Registry,
	fx Converter,
	params Params,
	notifier Notifier,
	initiateTimeout time.Duration,
) *WithdrawalService {
	return &WithdrawalService{
		store:           store,
		ledger:          ledger,
		registry:        registry,
		fx:              fx,
		params:          params,
		notifier:        notifier,
		initiateTimeout: initiateTimeout,
	}
}

// Request records a withdrawal awaiting admin approval. The amount may be
// in any configured currency; the ledger records its base-currency value,
// negative.
func (s *WithdrawalService) Request(ctx context.Context, accountID string, amount money.Money, providerName model.Provider, destination string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	base, err := s.fx.ToBase(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to convert withdrawal amount: %w", err)
	}
	if base.Cmp(s.params.WithdrawalMinimum) < 0 {
		return nil, ErrBelowMinimum
	}

	acct, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if !acct.Activated {
		return nil, ErrNotActivated
	}
	if acct.Balance.Cmp(base) < 0 {
		return nil, ErrInsufficientBalance
	}

	reference := uuid.NewString()
	tx := &model.Transaction{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Type:              model.TxTypeWithdrawal,
		Amount:            base.Neg(),
		Provider:          providerName,
		ExternalReference: &reference,
		Status:            model.TxStatusAdminApproval,
		Description:       fmt.Sprintf("Withdrawal via %s", providerName),
		Metadata:          map[string]string{"destination": destination},
	}
	if err := s.ledger.RecordPending(ctx, tx); err != nil {
		return nil, err
	}

	log.Info().
		Str("transaction_id", tx.ID).
		Str("account_id", accountID).
		Str("amount", base.String()).
		Msg("Withdrawal requested")
	return tx, nil
}

// Approve moves a requested withdrawal to processing and asks the provider
// to pay it out. The balance check is repeated here; requests queued behind
// other spending can no longer be covered.
func (s *WithdrawalService) Approve(ctx context.Context, txID string) error {
	tx, err := s.store.Transactions().GetByID(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Type != model.TxTypeWithdrawal {
		return fmt.Errorf("transaction %s is not a withdrawal", txID)
	}

	acct, err := s.store.Accounts().GetByID(ctx, tx.AccountID)
	if err != nil {
		return err
	}
	if acct.Balance.Cmp(tx.Amount.Abs()) < 0 {
		if _, err := s.ledger.Reject(ctx, txID, "insufficient balance at approval"); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}

	ok, err := s.store.Transactions().Transition(ctx, txID,
		[]model.TxStatus{model.TxStatusAdminApproval}, model.TxStatusProcessing, "")
	if err != nil {
		return fmt.Errorf("failed to approve withdrawal %s: %w", txID, err)
	}
	if !ok {
		return nil
	}

	if adapter, found := s.registry.Get(tx.Provider); found && tx.ExternalReference != nil {
		initCtx, cancel := context.WithTimeout(ctx, s.initiateTimeout)
		defer cancel()
		err := adapter.Initiate(initCtx, provider.InitiateRequest{
			Reference:   *tx.ExternalReference,
			AccountID:   tx.AccountID,
			Phone:       tx.Metadata["destination"],
			Amount:      tx.Amount.Abs(),
			Description: tx.Description,
		})
		if err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", txID).
				Msg("Withdrawal payout initiation did not confirm")
		}
	}

	log.Info().Str("transaction_id", txID).Msg("Withdrawal approved")
	s.notifier.Notify(ctx, &tx.AccountID, model.NotifyPayment,
		"Withdrawal approved", "Your withdrawal was approved and is being processed.")
	return nil
}

// Reject declines a withdrawal that has not started processing.
func (s *WithdrawalService) Reject(ctx context.Context, txID, reason string) error {
	tx, err := s.store.Transactions().GetByID(ctx, txID)
	if err != nil {
		return err
	}
	won, err := s.ledger.Reject(ctx, txID, reason)
	if err != nil {
		return err
	}
	if won {
		log.Info().Str("transaction_id", txID).Str("reason", reason).Msg("Withdrawal rejected")
		s.notifier.Notify(ctx, &tx.AccountID, model.NotifyPayment,
			"Withdrawal rejected", fmt.Sprintf("Your withdrawal was rejected: %s", reason))
	}
	return nil
}
