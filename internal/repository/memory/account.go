package memory

import (
	"context"
	"time"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
	"earn-platform/internal/repository"
)

type accounts struct {
	s *Store
	v *view
}

func (r *accounts) Create(ctx context.Context, acct *model.Account) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		var zero struct{}
		if _, ok := st.accounts[acct.ID]; ok {
			return zero, repository.ErrDuplicateAccount
		}
		if _, ok := st.accountsByMail[acct.Email]; ok {
			return zero, repository.ErrDuplicateAccount
		}
		if _, ok := st.accountsByTel[acct.Phone]; ok {
			return zero, repository.ErrDuplicateAccount
		}
		if _, ok := st.accountsByCode[acct.ReferralCode]; ok {
			return zero, repository.ErrDuplicateAccount
		}
		cp := cloneAccount(acct)
		now := time.Now()
		cp.CreatedAt = now
		cp.UpdatedAt = now
		st.accounts[cp.ID] = cp
		st.accountsByMail[cp.Email] = cp.ID
		st.accountsByTel[cp.Phone] = cp.ID
		st.accountsByCode[cp.ReferralCode] = cp.ID
		return zero, nil
	})
	return err
}

func (r *accounts) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return run(r.s, r.v, func(st *state) (*model.Account, error) {
		a, ok := st.accounts[id]
		if !ok {
			return nil, repository.ErrAccountNotFound
		}
		return cloneAccount(a), nil
	})
}

func (r *accounts) GetByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	return run(r.s, r.v, func(st *state) (*model.Account, error) {
		id, ok := st.accountsByCode[code]
		if !ok {
			return nil, repository.ErrAccountNotFound
		}
		return cloneAccount(st.accounts[id]), nil
	})
}

func (r *accounts) ApplyBalanceDelta(ctx context.Context, id string, delta money.Money, bucket model.EarningsBucket) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		var zero struct{}
		a, ok := st.accounts[id]
		if !ok {
			return zero, repository.ErrAccountNotFound
		}
		a.Balance = a.Balance.Add(delta)
		switch {
		case bucket != model.BucketNone:
			switch bucket {
			case model.BucketReferral:
				a.ReferralEarnings = a.ReferralEarnings.Add(delta)
			case model.BucketBinary:
				a.BinaryEarnings = a.BinaryEarnings.Add(delta)
			case model.BucketTask:
				a.TaskEarnings = a.TaskEarnings.Add(delta)
			case model.BucketTeam:
				a.TeamEarnings = a.TeamEarnings.Add(delta)
			}
			a.TotalEarned = a.TotalEarned.Add(delta)
		case delta.IsPositive():
			a.TotalEarned = a.TotalEarned.Add(delta)
		case delta.IsNegative():
			a.TotalWithdrawn = a.TotalWithdrawn.Add(delta.Neg())
		}
		a.UpdatedAt = time.Now()
		return zero, nil
	})
	return err
}

func (r *accounts) Activate(ctx context.Context, id string) (bool, error) {
	return run(r.s, r.v, func(st *state) (bool, error) {
		a, ok := st.accounts[id]
		if !ok {
			return false, repository.ErrAccountNotFound
		}
		if a.Activated || a.Balance.Cmp(a.ActivationThreshold) < 0 {
			return false, nil
		}
		a.Activated = true
		a.UpdatedAt = time.Now()
		return true, nil
	})
}

func (r *accounts) AttachChild(ctx context.Context, parentID string, pos model.Position, childID string) (bool, error) {
	return run(r.s, r.v, func(st *state) (bool, error) {
		a, ok := st.accounts[parentID]
		if !ok {
			return false, repository.ErrAccountNotFound
		}
		if pos == model.PositionLeft {
			if a.LeftChildID != nil {
				return false, nil
			}
			a.LeftChildID = &childID
		} else {
			if a.RightChildID != nil {
				return false, nil
			}
			a.RightChildID = &childID
		}
		a.UpdatedAt = time.Now()
		return true, nil
	})
}

func (r *accounts) SetPlacement(ctx context.Context, id, parentID string, pos model.Position) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		var zero struct{}
		a, ok := st.accounts[id]
		if !ok {
			return zero, repository.ErrAccountNotFound
		}
		a.ParentID = &parentID
		a.Position = pos
		a.UpdatedAt = time.Now()
		return zero, nil
	})
	return err
}

func (r *accounts) IncrementLegSize(ctx context.Context, id string, pos model.Position, delta int) error {
	_, err := run(r.s, r.v, func(st *state) (struct{}, error) {
		var zero struct{}
		a, ok := st.accounts[id]
		if !ok {
			return zero, repository.ErrAccountNotFound
		}
		if pos == model.PositionLeft {
			a.LeftLegSize += delta
		} else {
			a.RightLegSize += delta
		}
		a.UpdatedAt = time.Now()
		return zero, nil
	})
	return err
}

func (r *accounts) MarkSpun(ctx context.Context, id string) (bool, error) {
	return run(r.s, r.v, func(st *state) (bool, error) {
		a, ok := st.accounts[id]
		if !ok {
			return false, repository.ErrAccountNotFound
		}
		if a.HasSpunOnce {
			return false, nil
		}
		a.HasSpunOnce = true
		a.UpdatedAt = time.Now()
		return true, nil
	})
}

func (r *accounts) ClaimTeamReward(ctx context.Context, id string) (bool, error) {
	return run(r.s, r.v, func(st *state) (bool, error) {
		a, ok := st.accounts[id]
		if !ok {
			return false, repository.ErrAccountNotFound
		}
		if a.TeamRewardClaimed {
			return false, nil
		}
		a.TeamRewardClaimed = true
		a.UpdatedAt = time.Now()
		return true, nil
	})
}
