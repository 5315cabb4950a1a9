package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/repository"
)

type transactions struct {
	db DBTX
}

const txColumns = `id, account_id, type, amount, currency, provider,
	external_reference, status, reason, description, metadata,
	created_at, completed_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		tx       model.Transaction
		amount   int64
		currency string
		meta     []byte
	)
	err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.Type, &amount, &currency, &tx.Provider,
		&tx.ExternalReference, &tx.Status, &tx.Reason, &tx.Description, &meta,
		&tx.CreatedAt, &tx.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	tx.Amount = money.New(amount, currency)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &tx.Metadata); err != nil {
			return nil, err
		}
	}
	return &tx, nil
}

func (r *transactions) Create(ctx context.Context, tx *model.Transaction) error {
	meta := tx.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO transactions (
			id, account_id, type, amount, currency, provider,
			external_reference, status, reason, description, metadata, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.ID, tx.AccountID, string(tx.Type), tx.Amount.Units(), tx.Amount.Currency(), string(tx.Provider),
		tx.ExternalReference, string(tx.Status), tx.Reason, tx.Description, metaJSON, tx.CompletedAt,
	)
	if isUniqueViolation(err, "transactions_live_reference_key") {
		return repository.ErrDuplicateReference
	}
	return err
}

func (r *transactions) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
}

func (r *transactions) GetByReference(ctx context.Context, provider model.Provider, ref string) (*model.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE provider = $1 AND external_reference = $2 AND status <> 'failed'`,
		string(provider), ref))
}

func (r *transactions) Transition(ctx context.Context, id string, from []model.TxStatus, to model.TxStatus, reason string) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions SET
			status = $2,
			reason = CASE WHEN $3 = '' THEN reason ELSE $3 END,
			completed_at = CASE WHEN $4 THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status = ANY($5)`,
		id, string(to), reason, to.Terminal(), fromStr)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.exists(ctx, id)
}

func (r *transactions) SetMetadata(ctx context.Context, id, key, value string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET metadata = metadata || jsonb_build_object($2::text, $3::text)
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'rejected')`,
		id, key, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Terminal records are immutable; a matched but unmodified row is fine.
	return r.exists(ctx, id)
}

func (r *transactions) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		accountID, limitArg)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *transactions) ListStalePending(ctx context.Context, cutoff time.Time) ([]*model.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE status = 'pending'
			AND provider NOT IN ('', 'internal')
			AND external_reference IS NOT NULL
			AND created_at < $1
		ORDER BY created_at`,
		cutoff)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *transactions) SumCompleted(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND status = 'completed'`,
		accountID).Scan(&sum)
	return sum, err
}

func collectTransactions(rows pgx.Rows) ([]*model.Transaction, error) {
	defer rows.Close()
	var out []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *transactions) exists(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM transactions WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrTransactionNotFound
	}
	return err
}
