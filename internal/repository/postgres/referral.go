package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/repository"
)

type referrals struct {
	db DBTX
}

const referralColumns = `id, referrer_id, referred_id, status, reward, currency,
	created_at, completed_at`

func scanReferral(row pgx.Row) (*model.Referral, error) {
	var (
		ref      model.Referral
		reward   int64
		currency string
	)
	err := row.Scan(
		&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.Status, &reward, &currency,
		&ref.CreatedAt, &ref.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrReferralNotFound
	}
	if err != nil {
		return nil, err
	}
	ref.Reward = money.New(reward, currency)
	return &ref, nil
}

func (r *referrals) Create(ctx context.Context, ref *model.Referral) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, status, reward, currency)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ref.ID, ref.ReferrerID, ref.ReferredID, string(ref.Status),
		ref.Reward.Units(), ref.Reward.Currency(),
	)
	if isUniqueViolation(err, "referrals_referred_key") {
		return repository.ErrDuplicateReferral
	}
	return err
}

func (r *referrals) GetByReferred(ctx context.Context, referredID string) (*model.Referral, error) {
	return scanReferral(r.db.QueryRow(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referred_id = $1`, referredID))
}

func (r *referrals) Complete(ctx context.Context, referredID string) (*model.Referral, bool, error) {
	ref, err := scanReferral(r.db.QueryRow(ctx, `
		UPDATE referrals SET status = 'completed', completed_at = NOW()
		WHERE referred_id = $1 AND status = 'pending'
		RETURNING `+referralColumns,
		referredID))
	if err == nil {
		return ref, true, nil
	}
	if !errors.Is(err, repository.ErrReferralNotFound) {
		return nil, false, err
	}
	// Not pending, or missing entirely; the read disambiguates.
	ref, err = r.GetByReferred(ctx, referredID)
	if err != nil {
		return nil, false, err
	}
	return ref, false, nil
}

type notifications struct {
	db DBTX
}

func (r *notifications) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, account_id, title, message, kind, read)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.AccountID, n.Title, n.Message, string(n.Kind), n.Read,
	)
	return err
}

func (r *notifications) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Notification, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, title, message, kind, read, created_at
		FROM notifications
		WHERE account_id = $1 OR account_id IS NULL
		ORDER BY created_at DESC
		LIMIT $2`,
		accountID, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Title, &n.Message, &n.Kind, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
