package submit

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

func newSubmitter() (*Submitter, *mineapi.Fake, *ledger.SolutionsStore, *ledger.StatsStore) {
	api := mineapi.NewFake()
	solutions := ledger.NewSolutionsStore(memstore.New())
	stats := ledger.NewStatsStore(memstore.New())
	ck := clock.NewFake(time.Unix(0, 0))
	return New(api, solutions, stats, ck, nil), api, solutions, stats
}

func TestSubmitRecordsSolutionAndStats(t *testing.T) {
	s, api, solutions, stats := newSubmitter()
	ctx := context.Background()

	err := s.Submit(ctx, "addr1", "chal1", "nonce1", "worker1", false)
	require.NoError(t, err)
	require.Len(t, api.Submitted, 1)

	has, err := solutions.HasSolution(ctx, "addr1", "chal1")
	require.NoError(t, err)
	require.True(t, has)

	snap, err := stats.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.TotalSolutions)
	require.Equal(t, 0, snap.DonationSolutions)
}

func TestSubmitDonationSkipsPerAddressFile(t *testing.T) {
	s, _, solutions, stats := newSubmitter()
	ctx := context.Background()

	err := s.Submit(ctx, "donation-addr", "chal1", "nonce1", "worker1", true)
	require.NoError(t, err)

	has, err := solutions.HasSolution(ctx, "donation-addr", "chal1")
	require.NoError(t, err)
	require.False(t, has)

	snap, err := stats.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.TotalSolutions)
	require.Equal(t, 1, snap.DonationSolutions)
}

func TestSubmitDuplicateTreatedAsSuccess(t *testing.T) {
	s, api, solutions, _ := newSubmitter()
	ctx := context.Background()
	api.MarkDuplicate("addr1", "chal1", "nonce1")

	err := s.Submit(ctx, "addr1", "chal1", "nonce1", "worker1", false)
	require.NoError(t, err)

	has, err := solutions.HasSolution(ctx, "addr1", "chal1")
	require.NoError(t, err)
	require.True(t, has)
}

func TestSubmitOtherFailureRecordsError(t *testing.T) {
	s, api, solutions, stats := newSubmitter()
	ctx := context.Background()
	api.DisableDonations() // unrelated knob; use a genuine failure path instead below.
	_ = api

	failing := mineapiAlwaysFails{}
	s.api = failing

	err := s.Submit(ctx, "addr1", "chal1", "nonce1", "worker1", false)
	require.Error(t, err)

	has, err := solutions.HasSolution(ctx, "addr1", "chal1")
	require.NoError(t, err)
	require.False(t, has)

	snap, err := stats.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.TotalErrors)
	require.Equal(t, 0, snap.TotalSolutions)
}

type mineapiAlwaysFails struct{ mineapi.API }

func (mineapiAlwaysFails) Submit(_ context.Context, address, challengeID, nonce string) (mineapi.SolutionReceipt, error) {
	return mineapi.SolutionReceipt{}, errAlwaysFails
}

var errAlwaysFails = &alwaysFailsErr{}

type alwaysFailsErr struct{}

func (*alwaysFailsErr) Error() string { return "submit: simulated transport failure" }
