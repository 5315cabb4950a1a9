package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

// ActivationService flips accounts to activated when their balance reaches
// the threshold and releases the payouts that hang off that moment: upline
// commissions and the sponsor's referral reward.
type ActivationService struct {
	store      repository.Store
	ledger     *LedgerService
	commission *CommissionService
	params     Params
	notifier   Notifier
}

// NewActivationService creates a new ActivationService instance.
func NewActivationService(
	store repository.Store,
	ledger *LedgerService,
	commission *CommissionService,
	params Params,
	notifier Notifier,
) *ActivationService {
	return &ActivationService{
		store:      store,
		ledger:     ledger,
		commission: commission,
		params:     params,
		notifier:   notifier,
	}
}

// MaybeActivate activates the account if its balance has reached the
// threshold. Exactly one caller wins the flip under concurrency; only the
// winner drives the payout chain. The chain itself is built from idempotent
// steps, so a crash mid-way is recovered by ReplayPayouts.
func (s *ActivationService) MaybeActivate(ctx context.Context, accountID string) error {
	won, err := s.store.Accounts().Activate(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to activate %s: %w", accountID, err)
	}
	if !won {
		return nil
	}
	return s.Activated(ctx, accountID)
}

// Activated runs the winner's side of an activation: the announcement and
// the payout chain. Callers that fold the activation flip into a larger
// unit of work invoke this once that unit commits.
func (s *ActivationService) Activated(ctx context.Context, accountID string) error {
	log.Info().Str("account_id", accountID).Msg("Account activated")
	s.notifier.Notify(ctx, &accountID, model.NotifySystem,
		"Account activated", "Your account is now active. Referral and team earnings are unlocked.")

	return s.ReplayPayouts(ctx, accountID)
}

// ReplayPayouts drives the activation payout chain for an already activated
// account. Every step is exactly-once through deterministic award
// references, so replaying after a partial failure completes the remainder
// without double-paying.
func (s *ActivationService) ReplayPayouts(ctx context.Context, accountID string) error {
	if err := s.commission.PayUpline(ctx, accountID); err != nil {
		return err
	}
	return s.payReferralReward(ctx, accountID)
}

// payReferralReward completes the referred account's referral record and
// pays the referrer once.
func (s *ActivationService) payReferralReward(ctx context.Context, accountID string) error {
	ref, _, err := s.store.Referrals().Complete(ctx, accountID)
	if errors.Is(err, repository.ErrReferralNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to complete referral for %s: %w", accountID, err)
	}

	reference := "referral:" + accountID
	paid, err := s.ledger.Award(ctx, ref.ReferrerID, model.TxTypeReferralReward, ref.Reward, reference,
		fmt.Sprintf("Referral reward for %s", accountID))
	if err != nil {
		return err
	}
	if paid {
		log.Info().
			Str("referrer_id", ref.ReferrerID).
			Str("referred_id", accountID).
			Str("amount", ref.Reward.String()).
			Msg("Referral reward paid")
		s.notifier.Notify(ctx, &ref.ReferrerID, model.NotifyReward,
			"Referral reward", fmt.Sprintf("You earned %s for a successful referral.", ref.Reward))
	}
	return nil
}
