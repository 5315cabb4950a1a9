package memory

import (
	"context"
	"time"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

type transactions struct {
	s *Store
	v *view
}

func (r *transactions) Create(ctx context.Context, tx *model.Transaction) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		var zero struct{}
		if tx.ExternalReference != nil {
			for _, id := range st.txOrder {
				existing := st.txs[id]
				if existing.Status == model.TxStatusFailed {
					continue
				}
				if existing.Provider == tx.Provider &&
					existing.ExternalReference != nil &&
					*existing.ExternalReference == *tx.ExternalReference {
					return zero, repository.ErrDuplicateReference
				}
			}
		}
		cp := cloneTransaction(tx)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		st.txs[cp.ID] = cp
		st.txOrder = append(st.txOrder, cp.ID)
		return zero, nil
	})
	return err
}

func (r *transactions) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	return run(r.s, r.v, func(st *state) (*model.Transaction, error) {
		tx, ok := st.txs[id]
		if !ok {
			return nil, repository.ErrTransactionNotFound
		}
		return cloneTransaction(tx), nil
	})
}

func (r *transactions) GetByReference(ctx context.Context, provider model.Provider, ref string) (*model.Transaction, error) {
	return run(r.s, r.v, func(st *state) (*model.Transaction, error) {
		for _, id := range st.txOrder {
			tx := st.txs[id]
			if tx.Status == model.TxStatusFailed {
				continue
			}
			if tx.Provider == provider && tx.ExternalReference != nil && *tx.ExternalReference == ref {
				return cloneTransaction(tx), nil
			}
		}
		return nil, repository.ErrTransactionNotFound
	})
}

func (r *transactions) Transition(ctx context.Context, id string, from []model.TxStatus, to model.TxStatus, reason string) (bool, error) {
	return run(r.s, r.v, func(st *state) (bool, error) {
		tx, ok := st.txs[id]
		if !ok {
			return false, repository.ErrTransactionNotFound
		}
		matched := false
		for _, f := range from {
			if tx.Status == f {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
		tx.Status = to
		if reason != "" {
			tx.Reason = reason
		}
		if to.Terminal() {
			now := time.Now()
			tx.CompletedAt = &now
		}
		return true, nil
	})
}

func (r *transactions) SetMetadata(ctx context.Context, id, key, value string) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		var zero struct{}
		tx, ok := st.txs[id]
		if !ok {
			return zero, repository.ErrTransactionNotFound
		}
		if tx.Status.Terminal() {
			// Terminal records are immutable.
			return zero, nil
		}
		if tx.Metadata == nil {
			tx.Metadata = make(map[string]string)
		}
		tx.Metadata[key] = value
		return zero, nil
	})
	return err
}

func (r *transactions) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	return run(r.s, r.v, func(st *state) ([]*model.Transaction, error) {
		var out []*model.Transaction
		for i := len(st.txOrder) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			tx := st.txs[st.txOrder[i]]
			if tx.AccountID == accountID {
				out = append(out, cloneTransaction(tx))
			}
		}
		return out, nil
	})
}

func (r *transactions) ListStalePending(ctx context.Context, cutoff time.Time) ([]*model.Transaction, error) {
	return run(r.s, r.v, func(st *state) ([]*model.Transaction, error) {
		var out []*model.Transaction
		for _, id := range st.txOrder {
			tx := st.txs[id]
			if tx.Status != model.TxStatusPending {
				continue
			}
			if tx.Provider == "" || tx.Provider == model.ProviderInternal || tx.ExternalReference == nil {
				continue
			}
			if tx.CreatedAt.Before(cutoff) {
				out = append(out, cloneTransaction(tx))
			}
		}
		return out, nil
	})
}

func (r *transactions) SumCompleted(ctx context.Context, accountID string) (int64, error) {
	return run(r.s, r.v, func(st *state) (int64, error) {
		var sum int64
		for _, tx := range st.txs {
			if tx.AccountID == accountID && tx.Status == model.TxStatusCompleted {
				sum += tx.Amount.Units()
			}
		}
		return sum, nil
	})
}
