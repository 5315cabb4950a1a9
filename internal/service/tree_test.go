package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"
)

func TestPlaceFillsWeakerLegFirst(t *testing.T) {
	env := newTestEnv(t)
	sponsor := env.register(t, "")

	first := env.register(t, sponsor.ReferralCode)
	second := env.register(t, sponsor.ReferralCode)
	third := env.register(t, sponsor.ReferralCode)

	got := env.account(t, sponsor.ID)
	require.NotNil(t, got.LeftChildID)
	require.NotNil(t, got.RightChildID)
	require.Equal(t, first.ID, *got.LeftChildID)
	require.Equal(t, second.ID, *got.RightChildID)
	require.Equal(t, 2, got.LeftLegSize)
	require.Equal(t, 1, got.RightLegSize)

	// Both direct slots taken; the third member spills under the first.
	placed := env.account(t, third.ID)
	require.NotNil(t, placed.ParentID)
	require.Equal(t, first.ID, *placed.ParentID)
}

func TestPlaceIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	sponsor := env.register(t, "")
	member := env.register(t, sponsor.ReferralCode)

	// A replayed placement must not move the account or bump any counter.
	chain, err := env.tree.Place(context.Background(), sponsor.ID, member.ID)
	require.NoError(t, err)
	require.Empty(t, chain)

	got := env.account(t, sponsor.ID)
	require.Equal(t, 1, got.TeamSize())
}

func TestPlaceSequentialKeepsSponsorLegsBalanced(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		env := newTestEnv(t)
		sponsor := env.register(t, "")

		n := rapid.IntRange(1, 25).Draw(rt, "members")
		for i := 0; i < n; i++ {
			env.register(t, sponsor.ReferralCode)
		}

		got := env.account(t, sponsor.ID)
		if got.TeamSize() != n {
			rt.Fatalf("sponsor team size = %d, want %d", got.TeamSize(), n)
		}
		diff := got.LeftLegSize - got.RightLegSize
		if diff < -1 || diff > 1 {
			rt.Fatalf("sponsor legs unbalanced: left=%d right=%d", got.LeftLegSize, got.RightLegSize)
		}
	})
}

func TestPlaceConcurrentRegistrations(t *testing.T) {
	env := newTestEnv(t)
	sponsor := env.register(t, "")

	const n = 16
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := env.registration.Register(context.Background(), RegisterInput{
				Email:       fmt.Sprintf("race%d@example.com", i),
				Phone:       fmt.Sprintf("+2547100%05d", i),
				SponsorCode: sponsor.ReferralCode,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	// Every slot claim is serialized by the child-slot CAS; no member is
	// lost and every leg-size increment lands.
	got := env.account(t, sponsor.ID)
	require.Equal(t, n, got.TeamSize())
}

func TestAncestorsWalksToRoot(t *testing.T) {
	env := newTestEnv(t)
	chain := buildChain(t, env, 4)

	ancestors, err := env.tree.Ancestors(context.Background(), chain[3].ID, 0)
	require.NoError(t, err)
	require.Len(t, ancestors, 3)
	require.Equal(t, chain[2].ID, ancestors[0].ID)
	require.Equal(t, chain[1].ID, ancestors[1].ID)
	require.Equal(t, chain[0].ID, ancestors[2].ID)
}
