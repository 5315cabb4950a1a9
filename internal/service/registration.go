package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/repository"
)

// Registration errors.
var (
	ErrMissingContact   = errors.New("email and phone are required")
	ErrDuplicateAccount = errors.New("email, phone or referral code already registered")
)

// RegisterInput is the signup request.
type RegisterInput struct {
	Email    string
	Phone    string
	FullName string

	// SponsorCode is the referral code of the sponsoring account; empty
	// for a root account.
	SponsorCode string
}

// RegistrationService creates accounts: the account record, its referral
// edge, the signup ledger marker and the tree placement.
type RegistrationService struct {
	store    repository.Store
	tree     *TreeService
	reward   *RewardService
	params   Params
	notifier Notifier
}

// NewRegistrationService creates a new RegistrationService instance.
func NewRegistrationService(
	store repository.Store,
	tree *TreeService,
	reward *RewardService,
	params Params,
	notifier Notifier,
) *RegistrationService {
	return &RegistrationService{
		store:    store,
		tree:     tree,
		reward:   reward,
		params:   params,
		notifier: notifier,
	}
}

// Register creates a new account. With a sponsor code the account gets a
// pending referral record and a slot in the sponsor's weaker leg; without
// one it becomes a tree root. Accounts start unactivated with a zero
// balance.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	if in.Email == "" || in.Phone == "" {
		return nil, ErrMissingContact
	}

	var sponsor *model.Account
	if in.SponsorCode != "" {
		var err error
		sponsor, err = s.store.Accounts().GetByReferralCode(ctx, in.SponsorCode)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil, ErrSponsorNotFound
			}
			return nil, fmt.Errorf("failed to resolve sponsor code: %w", err)
		}
	}

	acct := &model.Account{
		ID:                  uuid.NewString(),
		Email:               strings.ToLower(in.Email),
		Phone:               in.Phone,
		FullName:            in.FullName,
		ReferralCode:        newReferralCode(),
		Balance:             money.Zero(s.params.BaseCurrency),
		ActivationThreshold: s.params.ActivationThreshold,
		ReferralEarnings:    money.Zero(s.params.BaseCurrency),
		BinaryEarnings:      money.Zero(s.params.BaseCurrency),
		TaskEarnings:        money.Zero(s.params.BaseCurrency),
		TeamEarnings:        money.Zero(s.params.BaseCurrency),
		TotalEarned:         money.Zero(s.params.BaseCurrency),
		TotalWithdrawn:      money.Zero(s.params.BaseCurrency),
	}
	if sponsor != nil {
		acct.SponsorID = &sponsor.ID
	}

	err := s.store.Atomic(ctx, func(st repository.Store) error {
		if err := st.Accounts().Create(ctx, acct); err != nil {
			return err
		}
		if sponsor != nil {
			err := st.Referrals().Create(ctx, &model.Referral{
				ID:         uuid.NewString(),
				ReferrerID: sponsor.ID,
				ReferredID: acct.ID,
				Status:     model.ReferralPending,
				Reward:     s.params.ReferralReward,
			})
			if err != nil {
				return err
			}
		}
		// Zero-amount marker so the account's ledger starts at signup.
		now := time.Now()
		signupRef := "signup:" + acct.ID
		return st.Transactions().Create(ctx, &model.Transaction{
			ID:                uuid.NewString(),
			AccountID:         acct.ID,
			Type:              model.TxTypeAccountCreation,
			Amount:            money.Zero(s.params.BaseCurrency),
			Provider:          model.ProviderInternal,
			ExternalReference: &signupRef,
			Status:            model.TxStatusCompleted,
			Description:       "Account created",
			CompletedAt:       &now,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	log.Info().
		Str("account_id", acct.ID).
		Str("referral_code", acct.ReferralCode).
		Bool("sponsored", sponsor != nil).
		Msg("Account registered")

	if sponsor != nil {
		if err := s.placeAndReward(ctx, sponsor.ID, acct.ID); err != nil {
			return nil, err
		}
	}

	s.notifier.Notify(ctx, &acct.ID, model.NotifySystem,
		"Welcome", "Your account has been created. Deposit to activate and start earning.")
	return s.store.Accounts().GetByID(ctx, acct.ID)
}

// placeAndReward puts the account into the sponsor's subtree and checks the
// team milestone for every ancestor whose team just grew.
func (s *RegistrationService) placeAndReward(ctx context.Context, sponsorID, accountID string) error {
	chain, err := s.tree.Place(ctx, sponsorID, accountID)
	if err != nil {
		return err
	}
	for _, ancestorID := range chain {
		if err := s.reward.MaybeTeamReward(ctx, ancestorID); err != nil {
			log.Warn().Err(err).Str("account_id", ancestorID).Msg("Team milestone check failed")
		}
	}
	return nil
}

// newReferralCode derives a short shareable code.
func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
