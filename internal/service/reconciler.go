package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/provider"
	"earn-platform/internal/repository"
)

// IngestResult says what an event did to the ledger.
type IngestResult string

const (
	// ResultApplied: the event settled or failed its transaction just now.
	ResultApplied IngestResult = "applied"

	// ResultAlreadyTerminal: the transaction had already reached a terminal
	// status; the event changed nothing. Duplicates and late arrivals land
	// here.
	ResultAlreadyTerminal IngestResult = "already_terminal"

	// ResultOrphaned: no live transaction carries the event's reference.
	ResultOrphaned IngestResult = "orphaned"

	// ResultAmountMismatch: the provider confirmed a different amount than
	// the recorded intent, beyond tolerance. The transaction is failed.
	ResultAmountMismatch IngestResult = "amount_mismatch"

	// ResultPending: the provider has no verdict yet.
	ResultPending IngestResult = "pending"
)

// Reconciler folds provider events into the ledger. Events arrive from
// webhooks and from the status poller, possibly duplicated, out of order,
// or for references the engine never issued; every path through Ingest is
// idempotent.
type Reconciler struct {
	store      repository.Store
	ledger     *LedgerService
	activation *ActivationService
	params     Params
	notifier   Notifier
}

// NewReconciler creates a new Reconciler instance.
func NewReconciler(
	store repository.Store,
	ledger *LedgerService,
	activation *ActivationService,
	params Params,
	notifier Notifier,
) *Reconciler {
	return &Reconciler{
		store:      store,
		ledger:     ledger,
		activation: activation,
		params:     params,
		notifier:   notifier,
	}
}

// Ingest applies one provider event. The event's reference locates the
// recorded intent; the intent's amount is what the wallet is credited, the
// provider's amount only has to agree within tolerance.
func (r *Reconciler) Ingest(ctx context.Context, ev provider.Event) (IngestResult, error) {
	tx, err := r.store.Transactions().GetByReference(ctx, ev.Provider, ev.ExternalReference)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		log.Warn().
			Str("provider", string(ev.Provider)).
			Str("reference", ev.ExternalReference).
			Str("outcome", string(ev.Outcome)).
			Msg("Event references no live transaction, ignoring")
		return ResultOrphaned, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up reference %s: %w", ev.ExternalReference, err)
	}

	if tx.Terminal() {
		log.Debug().
			Str("transaction_id", tx.ID).
			Str("status", string(tx.Status)).
			Str("outcome", string(ev.Outcome)).
			Msg("Event for settled transaction, ignoring")
		return ResultAlreadyTerminal, nil
	}

	switch ev.Outcome {
	case provider.OutcomePending:
		return ResultPending, nil
	case provider.OutcomeFailure:
		return r.applyFailure(ctx, tx, ev)
	case provider.OutcomeSuccess:
		return r.applySuccess(ctx, tx, ev)
	default:
		return "", fmt.Errorf("unknown event outcome %q", ev.Outcome)
	}
}

func (r *Reconciler) applyFailure(ctx context.Context, tx *model.Transaction, ev provider.Event) (IngestResult, error) {
	reason := ev.Reason
	if reason == "" {
		reason = "provider reported failure"
	}
	won, err := r.ledger.Fail(ctx, tx.ID, reason)
	if err != nil {
		return "", err
	}
	if !won {
		return ResultAlreadyTerminal, nil
	}

	log.Info().
		Str("transaction_id", tx.ID).
		Str("reason", reason).
		Msg("Transaction failed by provider event")
	r.notifier.Notify(ctx, &tx.AccountID, model.NotifyPayment,
		"Payment failed", fmt.Sprintf("Your %s of %s failed: %s", tx.Type, tx.Amount.Abs(), reason))
	return ResultApplied, nil
}

func (r *Reconciler) applySuccess(ctx context.Context, tx *model.Transaction, ev provider.Event) (IngestResult, error) {
	if !ev.Amount.IsZero() && !tx.Amount.Abs().WithinTolerance(ev.Amount.Abs(), r.params.AmountTolerance) {
		reason := fmt.Sprintf("amount_mismatch: provider reported %s, intent was %s",
			ev.Amount.Abs(), tx.Amount.Abs())
		won, err := r.ledger.Fail(ctx, tx.ID, reason)
		if err != nil {
			return "", err
		}
		if !won {
			return ResultAlreadyTerminal, nil
		}
		log.Error().
			Str("transaction_id", tx.ID).
			Str("provider_amount", ev.Amount.Abs().String()).
			Str("intent_amount", tx.Amount.Abs().String()).
			Msg("Provider amount disagrees with recorded intent")
		return ResultAmountMismatch, nil
	}

	if ev.RawPayload != "" {
		if err := r.store.Transactions().SetMetadata(ctx, tx.ID, "provider_payload", ev.RawPayload); err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to attach provider payload")
		}
	}

	// Settlement, the wallet credit and the activation flip commit
	// together; the payout chain runs after, in idempotent steps. Debits
	// re-verify the balance here because the wallet holds nothing between
	// approval and settlement, and other spending may have raced ahead.
	var won, activated, shortfall bool
	err := r.store.Atomic(ctx, func(st repository.Store) error {
		won, activated, shortfall = false, false, false
		if tx.Amount.IsNegative() {
			acct, err := st.Accounts().GetByID(ctx, tx.AccountID)
			if err != nil {
				return err
			}
			if acct.Balance.Cmp(tx.Amount.Abs()) < 0 {
				won, err = st.Transactions().Transition(ctx, tx.ID,
					[]model.TxStatus{model.TxStatusPending, model.TxStatusProcessing},
					model.TxStatusFailed, "insufficient balance at settlement")
				shortfall = true
				return err
			}
		}
		ok, err := st.Transactions().Transition(ctx, tx.ID,
			[]model.TxStatus{model.TxStatusPending, model.TxStatusProcessing},
			model.TxStatusCompleted, ev.Reason)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true
		if err := st.Accounts().ApplyBalanceDelta(ctx, tx.AccountID, tx.Amount, bucketForType(tx.Type)); err != nil {
			return err
		}
		if tx.Type == model.TxTypeDeposit {
			activated, err = st.Accounts().Activate(ctx, tx.AccountID)
			return err
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to settle transaction %s: %w", tx.ID, err)
	}
	if !won {
		return ResultAlreadyTerminal, nil
	}
	if shortfall {
		log.Error().
			Str("transaction_id", tx.ID).
			Str("account_id", tx.AccountID).
			Str("amount", tx.Amount.Abs().String()).
			Msg("Balance no longer covers the debit, failing it")
		r.notifier.Notify(ctx, &tx.AccountID, model.NotifyPayment,
			"Payment failed", fmt.Sprintf("Your %s of %s failed: insufficient balance", tx.Type, tx.Amount.Abs()))
		return ResultApplied, nil
	}

	log.Info().
		Str("transaction_id", tx.ID).
		Str("account_id", tx.AccountID).
		Str("amount", tx.Amount.String()).
		Str("type", string(tx.Type)).
		Msg("Transaction settled by provider event")
	r.notifier.Notify(ctx, &tx.AccountID, model.NotifyPayment,
		"Payment confirmed", fmt.Sprintf("Your %s of %s was confirmed.", tx.Type, tx.Amount.Abs()))

	if activated {
		if err := r.activation.Activated(ctx, tx.AccountID); err != nil {
			return "", err
		}
	}
	return ResultApplied, nil
}
