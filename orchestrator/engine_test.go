package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/donation"
	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/mineapi"
	"berith-chain/minefleet/miner"
	"berith-chain/minefleet/objectstore/memstore"
	"berith-chain/minefleet/submit"
)

func newTestEngine(t *testing.T, runner miner.Runner) (*Engine, *ledger.ChallengeStore, *ledger.SolutionsStore, *ledger.StatsStore) {
	t.Helper()
	api := mineapi.NewFake()
	challenges := ledger.NewChallengeStore(memstore.New())
	solutions := ledger.NewSolutionsStore(memstore.New())
	stats := ledger.NewStatsStore(memstore.New())
	ck := clock.NewFake(time.Now())

	puller := NewPuller(api, challenges, ck, nil, "us-east-1")
	pool := NewPool(4, runner, time.Second, ck, nil)
	interleaver := donation.NewInterleaver(1000) // effectively never fires in these tests.
	submitter := submit.New(api, solutions, stats, ck, nil)

	e := NewEngine(puller, challenges, solutions, pool, interleaver, donation.StaticProvider{}, submitter, "worker1", ck, nil, Config{
		WorkCheckInterval:      time.Second,
		ChallengeFetchInterval: time.Minute,
		ExpiryScanInterval:     time.Second,
		GraceWait:              time.Second,
	})
	return e, challenges, solutions, stats
}

func TestEngineTickDispatchesAndSubmitsSuccess(t *testing.T) {
	runner := fakeRunner{result: miner.Result{Success: true, Nonce: "n1"}}
	e, challenges, solutions, stats := newTestEngine(t, runner)
	ctx := context.Background()

	require.NoError(t, challenges.Replace(ctx, "us-east-1", func(ledger.ChallengeCache) []ledger.QueuedChallenge {
		return []ledger.QueuedChallenge{
			{ChallengeID: "c1", Difficulty: "0xff", LatestSubmission: time.Now().Add(time.Hour)},
		}
	}, time.Now()))

	require.NoError(t, e.Tick(ctx, []string{"addr1"}))
	out := <-e.results
	e.handleOutcome(ctx, out)

	has, err := solutions.HasSolution(ctx, "addr1", "c1")
	require.NoError(t, err)
	require.True(t, has)

	snap, err := stats.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.TotalSolutions)
}

func TestEngineHandleOutcomeSkipsSubmitOnFailure(t *testing.T) {
	runner := fakeRunner{result: miner.Result{Success: false}}
	e, challenges, solutions, _ := newTestEngine(t, runner)
	ctx := context.Background()

	require.NoError(t, challenges.Replace(ctx, "us-east-1", func(ledger.ChallengeCache) []ledger.QueuedChallenge {
		return []ledger.QueuedChallenge{
			{ChallengeID: "c1", Difficulty: "0xff", LatestSubmission: time.Now().Add(time.Hour)},
		}
	}, time.Now()))

	require.NoError(t, e.Tick(ctx, []string{"addr1"}))
	out := <-e.results
	e.handleOutcome(ctx, out)

	has, err := solutions.HasSolution(ctx, "addr1", "c1")
	require.NoError(t, err)
	require.False(t, has)
}

func TestEngineStatusReflectsTrackedDispatch(t *testing.T) {
	runner := fakeRunner{delay: time.Hour, result: miner.Result{Success: true}}
	e, challenges, _, _ := newTestEngine(t, runner)
	ctx := context.Background()

	require.NoError(t, challenges.Replace(ctx, "us-east-1", func(ledger.ChallengeCache) []ledger.QueuedChallenge {
		return []ledger.QueuedChallenge{
			{ChallengeID: "c1", Difficulty: "0xff", LatestSubmission: time.Now().Add(time.Hour)},
		}
	}, time.Now()))
	require.NoError(t, e.Tick(ctx, []string{"addr1"}))

	st := e.Status()
	require.Equal(t, "worker1", st.WorkerID)
	require.Equal(t, "us-east-1", st.Region)
	require.Equal(t, 1, st.PendingQueue)
	require.Equal(t, []string{"addr1-c1"}, st.InProgress)
}

func TestEngineScanExpiredAbortsTrackedDispatch(t *testing.T) {
	runner := fakeRunner{delay: time.Hour, result: miner.Result{Success: true}}
	e, challenges, _, _ := newTestEngine(t, runner)
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Millisecond)
	require.NoError(t, challenges.Replace(ctx, "us-east-1", func(ledger.ChallengeCache) []ledger.QueuedChallenge {
		return []ledger.QueuedChallenge{
			{ChallengeID: "c1", Difficulty: "0xff", LatestSubmission: expiresAt},
		}
	}, time.Now()))

	require.NoError(t, e.Tick(ctx, []string{"addr1"}))
	require.Len(t, e.tracked, 1)

	e.ScanExpired(expiresAt.Add(time.Second))
	require.Empty(t, e.tracked)
	require.False(t, e.pool.InProgress("addr1-c1"))
}
