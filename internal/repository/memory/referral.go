package memory

import (
	"context"
	"time"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

type referrals struct {
	s *Store
	v *view
}

func (r *referrals) Create(ctx context.Context, ref *model.Referral) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		var zero struct{}
		if _, ok := st.referrals[ref.ReferredID]; ok {
			return zero, repository.ErrDuplicateReferral
		}
		cp := cloneReferral(ref)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		st.referrals[cp.ReferredID] = cp
		return zero, nil
	})
	return err
}

func (r *referrals) GetByReferred(ctx context.Context, referredID string) (*model.Referral, error) {
	return run(r.s, r.v, func(st *state) (*model.Referral, error) {
		ref, ok := st.referrals[referredID]
		if !ok {
			return nil, repository.ErrReferralNotFound
		}
		return cloneReferral(ref), nil
	})
}

func (r *referrals) Complete(ctx context.Context, referredID string) (*model.Referral, bool, error) {
	type result struct {
		ref *model.Referral
		won bool
	}
	res, err := run(r.s, r.v, func(st *state) (result, error) {
		ref, ok := st.referrals[referredID]
		if !ok {
			return result{}, repository.ErrReferralNotFound
		}
		if ref.Status != model.ReferralPending {
			return result{ref: cloneReferral(ref)}, nil
		}
		ref.Status = model.ReferralCompleted
		now := time.Now()
		ref.CompletedAt = &now
		return result{ref: cloneReferral(ref), won: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res.ref, res.won, nil
}

type notifications struct {
	s *Store
	v *view
}

func (r *notifications) Create(ctx context.Context, n *model.Notification) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		cp := *n
		cp.AccountID = cloneStr(n.AccountID)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		st.notifications = append(st.notifications, &cp)
		return struct{}{}, nil
	})
	return err
}

func (r *notifications) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Notification, error) {
	return run(r.s, r.v, func(st *state) ([]*model.Notification, error) {
		var out []*model.Notification
		for i := len(st.notifications) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			n := st.notifications[i]
			// Broadcasts are visible to every account.
			if n.AccountID == nil || *n.AccountID == accountID {
				cp := *n
				cp.AccountID = cloneStr(n.AccountID)
				out = append(out, &cp)
			}
		}
		return out, nil
	})
}
