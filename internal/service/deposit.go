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

// DepositService starts collection flows. The intent is recorded on the
// ledger first, under an engine-generated merchant reference; the provider
// echoes that reference back in its events, which is how reconciliation
// finds the record again.
type DepositService struct {
	store    repository.Store
	ledger   *LedgerService
	registry *provider.Registry
	fx       Converter
	params   Params

	// initiateTimeout bounds the provider call only. An initiation that
	// times out leaves the intent pending; events or polling finish it.
	initiateTimeout time.Duration
}

// NewDepositService creates a new DepositService instance.
func NewDepositService(
	store repository.Store,
	ledger *LedgerService,
	registry *provider.Registry,
	fx Converter,
	params Params,
	initiateTimeout time.Duration,
) *DepositService {
	return &DepositService{
		store:           store,
		ledger:          ledger,
		registry:        registry,
		fx:              fx,
		params:          params,
		initiateTimeout: initiateTimeout,
	}
}

// Initiate records a pending deposit and asks the provider to collect it.
// The returned transaction is pending until reconciliation settles it.
func (s *DepositService) Initiate(ctx context.Context, accountID string, amount money.Money, providerName model.Provider, phone string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	adapter, ok := s.registry.Get(providerName)
	if !ok {
		return nil, ErrUnknownProvider
	}
	if _, err := s.store.Accounts().GetByID(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	base, err := s.fx.ToBase(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to convert deposit amount: %w", err)
	}

	reference := uuid.NewString()
	tx := &model.Transaction{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Type:              model.TxTypeDeposit,
		Amount:            base,
		Provider:          providerName,
		ExternalReference: &reference,
		Status:            model.TxStatusPending,
		Description:       fmt.Sprintf("Deposit via %s", providerName),
	}
	if err := s.ledger.RecordPending(ctx, tx); err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, s.initiateTimeout)
	defer cancel()
	err = adapter.Initiate(initCtx, provider.InitiateRequest{
		Reference:   reference,
		AccountID:   accountID,
		Phone:       phone,
		Amount:      amount,
		Description: tx.Description,
	})
	if err != nil {
		// The intent stays pending; a provider event or the status poller
		// still resolves it.
		log.Warn().
			Err(err).
			Str("transaction_id", tx.ID).
			Str("provider", string(providerName)).
			Msg("Deposit initiation did not confirm")
	}

	log.Info().
		Str("transaction_id", tx.ID).
		Str("account_id", accountID).
		Str("amount", base.String()).
		Str("provider", string(providerName)).
		Msg("Deposit initiated")
	return tx, nil
}
