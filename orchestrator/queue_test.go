package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/donation"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/objectstore/memstore"
)

func challenge(id, difficulty string, latest time.Time) ledger.QueuedChallenge {
	return ledger.QueuedChallenge{ChallengeID: id, Difficulty: difficulty, LatestSubmission: latest}
}

func TestBuildQueueSkipsAlreadySolved(t *testing.T) {
	ctx := context.Background()
	solutions := ledger.NewSolutionsStore(memstore.New())
	require.NoError(t, solutions.RecordSolution(ctx, "addr1", ledger.Solution{ChallengeID: "c1", Nonce: "n"}, time.Now()))

	items, err := BuildQueue(ctx, solutions, []string{"addr1", "addr2"}, []ledger.QueuedChallenge{
		challenge("c1", "0xff", time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "addr2", items[0].Address)
}

func TestBuildQueueSortsEasiestFirst(t *testing.T) {
	ctx := context.Background()
	solutions := ledger.NewSolutionsStore(memstore.New())

	items, err := BuildQueue(ctx, solutions, []string{"addr1"}, []ledger.QueuedChallenge{
		challenge("hard", "0x01", time.Now().Add(time.Hour)),
		challenge("easy", "0xff", time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "easy", items[0].Challenge.ChallengeID)
	require.Equal(t, "hard", items[1].Challenge.ChallengeID)
}

func TestDropExpiredFiltersPastLatestSubmission(t *testing.T) {
	now := time.Now()
	in := []ledger.QueuedChallenge{
		challenge("expired", "0xff", now.Add(-time.Minute)),
		challenge("live", "0xff", now.Add(time.Minute)),
	}
	out := DropExpired(in, now)
	require.Len(t, out, 1)
	require.Equal(t, "live", out[0].ChallengeID)
}

func TestMaybeInsertDonationDegradesOnProviderFailure(t *testing.T) {
	ctx := context.Background()
	in := donation.NewInterleaver(1)
	challenges := []ledger.QueuedChallenge{challenge("c1", "0xff", time.Now().Add(time.Hour))}

	failing := donation.StaticProvider{}
	items := MaybeInsertDonation(ctx, in, failing, challenges, nil)
	require.Empty(t, items)
}

func TestMaybeInsertDonationUsesEasiestChallenge(t *testing.T) {
	ctx := context.Background()
	in := donation.NewInterleaver(1)
	challenges := []ledger.QueuedChallenge{
		challenge("hard", "0x01", time.Now().Add(time.Hour)),
		challenge("easy", "0xff", time.Now().Add(time.Hour)),
	}
	provider := donation.StaticProvider{Address: "donation-addr"}
	items := MaybeInsertDonation(ctx, in, provider, challenges, nil)
	require.Len(t, items, 1)
	require.True(t, items[0].IsDonation)
	require.Equal(t, "easy", items[0].Challenge.ChallengeID)
	require.Equal(t, "donation-addr", items[0].Address)
}
