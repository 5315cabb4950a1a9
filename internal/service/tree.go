package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

// maxPlacementDepth bounds the descent; it also absorbs retries after a
// lost slot race.
const maxPlacementDepth = 10000

// errSlotTaken aborts the placement unit of work when the slot race is lost.
var errSlotTaken = errors.New("slot taken")

// TreeService maintains the binary placement tree: weaker-leg placement,
// first-available-slot descent and upward leg-size propagation.
type TreeService struct {
	store repository.Store
}

// NewTreeService creates a new TreeService instance.
func NewTreeService(store repository.Store) *TreeService {
	return &TreeService{store: store}
}

// weakerLeg picks the placement side at a node: the left leg unless the
// right one is strictly smaller.
func weakerLeg(a *model.Account) model.Position {
	if a.RightLegSize < a.LeftLegSize {
		return model.PositionRight
	}
	return model.PositionLeft
}

// Place attaches child under sponsor at the first available slot down the
// sponsor's weaker leg, re-choosing the side at every node on the way down.
// Competing placements serialize on the child-slot claim; the loser re-reads
// the node and keeps descending. It returns the ancestor chain that gained a
// descendant, nearest first.
func (s *TreeService) Place(ctx context.Context, sponsorID, childID string) ([]string, error) {
	child, err := s.store.Accounts().GetByID(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account to place: %w", err)
	}
	if child.ParentID != nil {
		// Already placed; a replayed registration must not move it.
		return nil, nil
	}

	cur, err := s.store.Accounts().GetByID(ctx, sponsorID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrSponsorNotFound
		}
		return nil, fmt.Errorf("failed to load sponsor: %w", err)
	}

	for depth := 0; depth < maxPlacementDepth; depth++ {
		pos := weakerLeg(cur)
		if next := cur.ChildID(pos); next != nil {
			cur, err = s.store.Accounts().GetByID(ctx, *next)
			if err != nil {
				return nil, fmt.Errorf("failed to descend to %s: %w", *next, err)
			}
			continue
		}

		parentID := cur.ID
		err = s.store.Atomic(ctx, func(st repository.Store) error {
			ok, err := st.Accounts().AttachChild(ctx, parentID, pos, childID)
			if err != nil {
				return err
			}
			if !ok {
				return errSlotTaken
			}
			return st.Accounts().SetPlacement(ctx, childID, parentID, pos)
		})
		if errors.Is(err, errSlotTaken) {
			// Lost the race for this slot; re-read and keep descending.
			cur, err = s.store.Accounts().GetByID(ctx, parentID)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read %s: %w", parentID, err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to place %s under %s: %w", childID, parentID, err)
		}

		log.Info().
			Str("account_id", childID).
			Str("parent_id", parentID).
			Str("position", string(pos)).
			Msg("Account placed in tree")
		return s.propagateLegSize(ctx, parentID, pos)
	}
	return nil, ErrPlacementDepth
}

// propagateLegSize walks from the attachment point to the root, adding one
// to the leg the new account sits under at each ancestor. Each increment is
// its own atomic step, so a concurrent placement interleaves safely.
func (s *TreeService) propagateLegSize(ctx context.Context, startID string, pos model.Position) ([]string, error) {
	var chain []string
	visited := make(map[string]bool)

	nodeID := startID
	for {
		if visited[nodeID] {
			return chain, fmt.Errorf("placement cycle detected at %s", nodeID)
		}
		visited[nodeID] = true

		if err := s.store.Accounts().IncrementLegSize(ctx, nodeID, pos, 1); err != nil {
			return chain, fmt.Errorf("failed to bump leg size at %s: %w", nodeID, err)
		}
		chain = append(chain, nodeID)

		node, err := s.store.Accounts().GetByID(ctx, nodeID)
		if err != nil {
			return chain, fmt.Errorf("failed to read ancestor %s: %w", nodeID, err)
		}
		if node.ParentID == nil {
			return chain, nil
		}
		pos = node.Position
		nodeID = *node.ParentID
	}
}

// Ancestors returns the parent chain of an account, nearest first.
func (s *TreeService) Ancestors(ctx context.Context, accountID string, limit int) ([]*model.Account, error) {
	acct, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var out []*model.Account
	visited := map[string]bool{acct.ID: true}
	cur := acct.ParentID
	for cur != nil && (limit <= 0 || len(out) < limit) {
		if visited[*cur] {
			return nil, fmt.Errorf("placement cycle detected at %s", *cur)
		}
		visited[*cur] = true
		parent, err := s.store.Accounts().GetByID(ctx, *cur)
		if err != nil {
			return nil, err
		}
		out = append(out, parent)
		cur = parent.ParentID
	}
	return out, nil
}
