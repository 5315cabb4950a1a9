package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

// CommissionService pays the multi-level upline commissions released by an
// activation.
type CommissionService struct {
	store  repository.Store
	ledger *LedgerService
	params Params
}

// NewCommissionService creates a new CommissionService instance.
func NewCommissionService(store repository.Store, ledger *LedgerService, params Params) *CommissionService {
	return &CommissionService{store: store, ledger: ledger, params: params}
}

// PayUpline walks the parent chain of a newly activated account and pays
// each level its scheduled amount. The walk stops at the first unactivated
// ancestor; deeper ancestors earn nothing from this activation. Every level
// is paid through its own idempotent award, so a replayed walk re-pays
// nobody.
func (s *CommissionService) PayUpline(ctx context.Context, downlineID string) error {
	acct, err := s.store.Accounts().GetByID(ctx, downlineID)
	if err != nil {
		return fmt.Errorf("failed to load downline %s: %w", downlineID, err)
	}

	visited := map[string]bool{acct.ID: true}
	cur := acct.ParentID
	for level := 1; level <= len(s.params.CommissionSchedule) && cur != nil; level++ {
		if visited[*cur] {
			return fmt.Errorf("placement cycle detected at %s", *cur)
		}
		visited[*cur] = true

		parent, err := s.store.Accounts().GetByID(ctx, *cur)
		if err != nil {
			return fmt.Errorf("failed to load level %d ancestor: %w", level, err)
		}
		if !parent.Activated {
			log.Debug().
				Str("account_id", parent.ID).
				Int("level", level).
				Msg("Upline walk stopped at unactivated ancestor")
			return nil
		}

		amount := s.params.CommissionSchedule[level-1]
		reference := fmt.Sprintf("binary:%s:%d", downlineID, level)
		paid, err := s.ledger.Award(ctx, parent.ID, model.TxTypeBinaryCommission, amount, reference,
			fmt.Sprintf("Level %d commission for %s", level, downlineID))
		if err != nil {
			return err
		}
		if paid {
			log.Info().
				Str("account_id", parent.ID).
				Int("level", level).
				Str("amount", amount.String()).
				Msg("Binary commission paid")
		}
		cur = parent.ParentID
	}
	return nil
}
