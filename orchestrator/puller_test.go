package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/mineapi"
	"berith-chain/minefleet/objectstore/memstore"
)

func TestPullerFetchUpsertsActiveChallenge(t *testing.T) {
	ctx := context.Background()
	api := mineapi.NewFake()
	api.NextChallenge = mineapi.ChallengeResponse{
		Code: mineapi.CodeActive,
		Challenge: &mineapi.Challenge{
			ChallengeID:      "c1",
			Difficulty:       "0xff",
			LatestSubmission: time.Now().Add(time.Hour).Format(time.RFC3339),
		},
	}
	challenges := ledger.NewChallengeStore(memstore.New())
	p := NewPuller(api, challenges, clock.NewFake(time.Now()), nil, "us-east-1")

	require.NoError(t, p.Fetch(ctx))

	cache, err := challenges.Read(ctx)
	require.NoError(t, err)
	require.Len(t, cache.Challenges, 1)
	require.Equal(t, "c1", cache.Challenges[0].ChallengeID)
}

func TestPullerFetchKeepsCacheOnBeforeAfter(t *testing.T) {
	ctx := context.Background()
	api := mineapi.NewFake()
	api.NextChallenge = mineapi.ChallengeResponse{Code: mineapi.CodeBefore}
	challenges := ledger.NewChallengeStore(memstore.New())
	require.NoError(t, challenges.Replace(ctx, "us-east-1", func(ledger.ChallengeCache) []ledger.QueuedChallenge {
		return []ledger.QueuedChallenge{{ChallengeID: "existing", Difficulty: "0x01"}}
	}, time.Now()))

	p := NewPuller(api, challenges, clock.NewFake(time.Now()), nil, "us-east-1")
	require.NoError(t, p.Fetch(ctx))

	cache, err := challenges.Read(ctx)
	require.NoError(t, err)
	require.Len(t, cache.Challenges, 1)
	require.Equal(t, "existing", cache.Challenges[0].ChallengeID)
}

func TestPullerUpsertReplacesExistingChallengeID(t *testing.T) {
	existing := []ledger.QueuedChallenge{{ChallengeID: "c1", Difficulty: "0x01"}}
	next := ledger.QueuedChallenge{ChallengeID: "c1", Difficulty: "0xff"}
	out := upsert(existing, next)
	require.Len(t, out, 1)
	require.Equal(t, "0xff", out[0].Difficulty)
}
