package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/objectstore/memstore"
)

func TestRecordSolutionIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := NewSolutionsStore(store)

	sol := Solution{ChallengeID: "C1", Nonce: "abc", SubmittedAt: time.Unix(100, 0)}
	require.NoError(t, s.RecordSolution(ctx, "addr-a", sol, time.Unix(100, 0)))
	require.NoError(t, s.RecordSolution(ctx, "addr-a", sol, time.Unix(200, 0)))

	sf, err := s.Read(ctx, "addr-a")
	require.NoError(t, err)
	assert.Len(t, sf.Solutions, 1, "repeated recordSolution for the same pair is a no-op")
}

func TestHasSolution(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := NewSolutionsStore(store)

	ok, err := s.HasSolution(ctx, "addr-a", "C1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RecordSolution(ctx, "addr-a", Solution{ChallengeID: "C1"}, time.Unix(0, 0)))

	ok, err = s.HasSolution(ctx, "addr-a", "C1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAtMostOnceRecordPerChallenge(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := NewSolutionsStore(store)

	require.NoError(t, s.RecordSolution(ctx, "addr-a", Solution{ChallengeID: "C1"}, time.Unix(0, 0)))
	require.NoError(t, s.RecordSolution(ctx, "addr-a", Solution{ChallengeID: "C2"}, time.Unix(0, 0)))
	require.NoError(t, s.RecordSolution(ctx, "addr-a", Solution{ChallengeID: "C1"}, time.Unix(0, 0)))

	sf, err := s.Read(ctx, "addr-a")
	require.NoError(t, err)
	seen := map[string]int{}
	for _, sol := range sf.Solutions {
		seen[sol.ChallengeID]++
	}
	assert.Equal(t, 1, seen["C1"])
	assert.Equal(t, 1, seen["C2"])
}
