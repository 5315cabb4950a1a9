package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/repository"
)

// RewardService pays the one-off bonuses: the spin-and-win draw, the team
// milestone reward and task earnings with their admin reversals.
type RewardService struct {
	store    repository.Store
	ledger   *LedgerService
	params   Params
	notifier Notifier
}

// NewRewardService creates a new RewardService instance.
func NewRewardService(store repository.Store, ledger *LedgerService, params Params, notifier Notifier) *RewardService {
	return &RewardService{store: store, ledger: ledger, params: params, notifier: notifier}
}

// Spin draws the one-time bonus for an activated account. The spin flag is
// claimed first; the award reference makes the payout survive a replay
// without paying twice.
func (s *RewardService) Spin(ctx context.Context, accountID string) (money.Money, error) {
	acct, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return money.Money{}, ErrAccountNotFound
		}
		return money.Money{}, err
	}
	if !acct.Activated {
		return money.Money{}, ErrNotActivated
	}

	won, err := s.store.Accounts().MarkSpun(ctx, accountID)
	if err != nil {
		return money.Money{}, fmt.Errorf("failed to claim spin: %w", err)
	}
	if !won {
		return money.Money{}, ErrAlreadySpun
	}

	amount := s.drawSpinAmount()
	if _, err := s.ledger.Award(ctx, accountID, model.TxTypeSpinAndWin, amount,
		"spin:"+accountID, "Spin and win bonus"); err != nil {
		return money.Money{}, err
	}

	log.Info().Str("account_id", accountID).Str("amount", amount.String()).Msg("Spin bonus won")
	s.notifier.Notify(ctx, &accountID, model.NotifyReward,
		"Spin and win", fmt.Sprintf("You won %s!", amount))
	return amount, nil
}

// drawSpinAmount picks a whole-currency amount in [spin_min, spin_max].
func (s *RewardService) drawSpinAmount() money.Money {
	minWhole := s.params.SpinMin.Units() / money.Scale
	maxWhole := s.params.SpinMax.Units() / money.Scale
	n := minWhole
	if maxWhole > minWhole {
		n += rand.Int63n(maxWhole - minWhole + 1)
	}
	return money.New(n*money.Scale, s.params.BaseCurrency)
}

// MaybeTeamReward pays the team milestone bonus once the account's placed
// descendants reach the configured size. Safe to call on every team-size
// change; the claim flag and award reference keep it exactly-once.
func (s *RewardService) MaybeTeamReward(ctx context.Context, accountID string) error {
	acct, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.TeamRewardClaimed || acct.TeamSize() < s.params.TeamRewardSize {
		return nil
	}

	won, err := s.store.Accounts().ClaimTeamReward(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to claim team reward: %w", err)
	}
	if !won {
		return nil
	}

	if _, err := s.ledger.Award(ctx, accountID, model.TxTypeTeamReward, s.params.TeamReward,
		"team:"+accountID, fmt.Sprintf("Team milestone of %d members", s.params.TeamRewardSize)); err != nil {
		return err
	}

	log.Info().
		Str("account_id", accountID).
		Int("team_size", acct.TeamSize()).
		Msg("Team milestone reward paid")
	s.notifier.Notify(ctx, &accountID, model.NotifyReward,
		"Team milestone", fmt.Sprintf("Your team reached %d members. You earned %s.",
			s.params.TeamRewardSize, s.params.TeamReward))
	return nil
}

// CompleteTask records a task completion and pays its reward. One
// completion per (account, task); the award reference pins the payout to
// that completion.
func (s *RewardService) CompleteTask(ctx context.Context, accountID, taskID string) (*model.TaskCompletion, error) {
	task, err := s.store.Tasks().GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Active {
		return nil, ErrTaskInactive
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

	completion := &model.TaskCompletion{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TaskID:    taskID,
		Status:    model.CompletionCompleted,
		Reward:    task.Reward,
	}
	if err := s.store.Tasks().CreateCompletion(ctx, completion); err != nil {
		if errors.Is(err, repository.ErrDuplicateCompletion) {
			return nil, ErrTaskAlreadyCompleted
		}
		return nil, fmt.Errorf("failed to record task completion: %w", err)
	}

	if _, err := s.ledger.Award(ctx, accountID, model.TxTypeTask, task.Reward,
		"task:"+completion.ID, fmt.Sprintf("Task reward: %s", task.Title)); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, &accountID, model.NotifyReward,
		"Task completed", fmt.Sprintf("You earned %s for completing %q.", task.Reward, task.Title))
	return completion, nil
}

// RejectTaskCompletion reverses a paid task by an admin decision. The
// original award stays on the ledger; a compensating negative record takes
// the reward back.
func (s *RewardService) RejectTaskCompletion(ctx context.Context, completionID, notes string) error {
	won, err := s.store.Tasks().RejectCompletion(ctx, completionID, notes)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	completion, err := s.store.Tasks().GetCompletion(ctx, completionID)
	if err != nil {
		return err
	}
	if _, err := s.ledger.Award(ctx, completion.AccountID, model.TxTypeTaskRefund,
		completion.Reward.Neg(), "task-refund:"+completionID, "Task completion rejected"); err != nil {
		return err
	}

	log.Info().
		Str("account_id", completion.AccountID).
		Str("completion_id", completionID).
		Msg("Task completion rejected and reversed")
	s.notifier.Notify(ctx, &completion.AccountID, model.NotifySystem,
		"Task rejected", "A task completion was rejected and its reward reversed.")
	return nil
}
