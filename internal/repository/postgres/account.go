package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/repository"
)

type accounts struct {
	db DBTX
}

const accountColumns = `id, email, phone, full_name, referral_code, sponsor_id,
	currency, balance, activated, activation_threshold,
	referral_earnings, binary_earnings, task_earnings, team_earnings,
	total_earned, total_withdrawn,
	parent_id, position, left_child_id, right_child_id,
	left_leg_size, right_leg_size,
	has_spun_once, team_reward_claimed, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a        model.Account
		currency string
		position string

		balance, threshold, refEarn, binEarn  int64
		taskEarn, teamEarn, earned, withdrawn int64
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.Phone, &a.FullName, &a.ReferralCode, &a.SponsorID,
		&currency, &balance, &a.Activated, &threshold,
		&refEarn, &binEarn, &taskEarn, &teamEarn,
		&earned, &withdrawn,
		&a.ParentID, &position, &a.LeftChildID, &a.RightChildID,
		&a.LeftLegSize, &a.RightLegSize,
		&a.HasSpunOnce, &a.TeamRewardClaimed, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Balance = money.New(balance, currency)
	a.ActivationThreshold = money.New(threshold, currency)
	a.ReferralEarnings = money.New(refEarn, currency)
	a.BinaryEarnings = money.New(binEarn, currency)
	a.TaskEarnings = money.New(taskEarn, currency)
	a.TeamEarnings = money.New(teamEarn, currency)
	a.TotalEarned = money.New(earned, currency)
	a.TotalWithdrawn = money.New(withdrawn, currency)
	a.Position = model.Position(position)
	return &a, nil
}

func (r *accounts) Create(ctx context.Context, acct *model.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (
			id, email, phone, full_name, referral_code, sponsor_id,
			currency, balance, activated, activation_threshold,
			referral_earnings, binary_earnings, task_earnings, team_earnings,
			total_earned, total_withdrawn,
			parent_id, position, left_child_id, right_child_id,
			left_leg_size, right_leg_size,
			has_spun_once, team_reward_claimed
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16,
			$17, $18, $19, $20,
			$21, $22,
			$23, $24
		)`,
		acct.ID, acct.Email, acct.Phone, acct.FullName, acct.ReferralCode, acct.SponsorID,
		acct.Balance.Currency(), acct.Balance.Units(), acct.Activated, acct.ActivationThreshold.Units(),
		acct.ReferralEarnings.Units(), acct.BinaryEarnings.Units(), acct.TaskEarnings.Units(), acct.TeamEarnings.Units(),
		acct.TotalEarned.Units(), acct.TotalWithdrawn.Units(),
		acct.ParentID, string(acct.Position), acct.LeftChildID, acct.RightChildID,
		acct.LeftLegSize, acct.RightLegSize,
		acct.HasSpunOnce, acct.TeamRewardClaimed,
	)
	if isUniqueViolation(err, "") {
		return repository.ErrDuplicateAccount
	}
	return err
}

func (r *accounts) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *accounts) GetByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code))
}

func (r *accounts) ApplyBalanceDelta(ctx context.Context, id string, delta money.Money, bucket model.EarningsBucket) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			balance = balance + $2,
			total_earned = total_earned
				+ CASE WHEN $3 <> '' OR $2 > 0 THEN $2 ELSE 0 END,
			total_withdrawn = total_withdrawn
				+ CASE WHEN $3 = '' AND $2 < 0 THEN -$2 ELSE 0 END,
			referral_earnings = referral_earnings
				+ CASE WHEN $3 = 'referral' THEN $2 ELSE 0 END,
			binary_earnings = binary_earnings
				+ CASE WHEN $3 = 'binary' THEN $2 ELSE 0 END,
			task_earnings = task_earnings
				+ CASE WHEN $3 = 'task' THEN $2 ELSE 0 END,
			team_earnings = team_earnings
				+ CASE WHEN $3 = 'team' THEN $2 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1`,
		id, delta.Units(), string(bucket))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrAccountNotFound
	}
	return nil
}

func (r *accounts) Activate(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET activated = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT activated AND balance >= activation_threshold`,
		id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.exists(ctx, id)
}

func (r *accounts) AttachChild(ctx context.Context, parentID string, pos model.Position, childID string) (bool, error) {
	query := `
		UPDATE accounts SET left_child_id = $2, updated_at = NOW()
		WHERE id = $1 AND left_child_id IS NULL`
	if pos == model.PositionRight {
		query = `
		UPDATE accounts SET right_child_id = $2, updated_at = NOW()
		WHERE id = $1 AND right_child_id IS NULL`
	}
	tag, err := r.db.Exec(ctx, query, parentID, childID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.exists(ctx, parentID)
}

func (r *accounts) SetPlacement(ctx context.Context, id, parentID string, pos model.Position) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET parent_id = $2, position = $3, updated_at = NOW()
		WHERE id = $1`,
		id, parentID, string(pos))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrAccountNotFound
	}
	return nil
}

func (r *accounts) IncrementLegSize(ctx context.Context, id string, pos model.Position, delta int) error {
	query := `
		UPDATE accounts SET left_leg_size = left_leg_size + $2, updated_at = NOW()
		WHERE id = $1`
	if pos == model.PositionRight {
		query = `
		UPDATE accounts SET right_leg_size = right_leg_size + $2, updated_at = NOW()
		WHERE id = $1`
	}
	tag, err := r.db.Exec(ctx, query, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrAccountNotFound
	}
	return nil
}

func (r *accounts) MarkSpun(ctx context.Context, id string) (bool, error) {
	return r.claimFlag(ctx, id, `
		UPDATE accounts SET has_spun_once = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT has_spun_once`)
}

func (r *accounts) ClaimTeamReward(ctx context.Context, id string) (bool, error) {
	return r.claimFlag(ctx, id, `
		UPDATE accounts SET team_reward_claimed = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT team_reward_claimed`)
}

func (r *accounts) claimFlag(ctx context.Context, id, query string) (bool, error) {
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.exists(ctx, id)
}

// exists distinguishes a lost conditional update from a missing account.
func (r *accounts) exists(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM accounts WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrAccountNotFound
	}
	return err
}
