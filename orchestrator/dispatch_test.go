package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/miner"
)

type fakeRunner struct {
	result miner.Result
	err    error
	delay  time.Duration
}

func (f fakeRunner) Run(ctx context.Context, p miner.Params, graceWait time.Duration) (miner.Result, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return miner.Result{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.result, f.err
}

func TestPoolDispatchRejectsDuplicateKey(t *testing.T) {
	runner := fakeRunner{delay: 50 * time.Millisecond, result: miner.Result{Success: true, Nonce: "n"}}
	pool := NewPool(2, runner, time.Second, clock.Real, nil)
	item := WorkItem{Address: "addr1", Challenge: ledger.QueuedChallenge{ChallengeID: "c1"}}
	results := make(chan Outcome, 2)

	require.True(t, pool.Dispatch(context.Background(), item, results))
	require.True(t, pool.InProgress(item.Key()))
	require.False(t, pool.Dispatch(context.Background(), item, results))

	out := <-results
	require.True(t, out.Result.Success)
	require.False(t, pool.InProgress(item.Key()))
}

func TestPoolDispatchSaturatesAtWidth(t *testing.T) {
	runner := fakeRunner{delay: 100 * time.Millisecond, result: miner.Result{Success: true}}
	pool := NewPool(1, runner, time.Second, clock.Real, nil)
	results := make(chan Outcome, 4)

	item1 := WorkItem{Address: "addr1", Challenge: ledger.QueuedChallenge{ChallengeID: "c1"}}
	item2 := WorkItem{Address: "addr2", Challenge: ledger.QueuedChallenge{ChallengeID: "c2"}}

	require.True(t, pool.Dispatch(context.Background(), item1, results))
	require.False(t, pool.Dispatch(context.Background(), item2, results))
	<-results
}

func TestPoolAbortReleasesKeyWithoutWaiting(t *testing.T) {
	pool := NewPool(1, fakeRunner{}, time.Second, clock.Real, nil)
	key := "addr1-c1"
	require.True(t, pool.tryAcquire(key))
	pool.Abort(key)
	require.False(t, pool.InProgress(key))
}
