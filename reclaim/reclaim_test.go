package reclaim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/compute"
	"berith-chain/minefleet/heartbeat"
	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/objectstore/memstore"
	"berith-chain/minefleet/registry"
)

func TestLeaderUniqueness(t *testing.T) {
	cp := compute.NewFake()
	cp.Seed("us-east-1", "worker-c")
	cp.Seed("us-east-1", "worker-a")
	cp.Seed("us-east-1", "worker-b")

	ctx := context.Background()
	leaders := 0
	for _, id := range []string{"worker-a", "worker-b", "worker-c"} {
		ok, err := IsLeader(ctx, cp, "us-east-1", id)
		require.NoError(t, err)
		if ok {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders, "exactly one worker's leader test returns true")

	ok, err := IsLeader(ctx, cp, "us-east-1", "worker-a")
	require.NoError(t, err)
	assert.True(t, ok, "sorted-first identity wins deterministically")
}

func TestRunOnceReclaimsAfterCrash(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fc := clock.NewFake(time.Unix(0, 0))
	reg := registry.New(store, fc, nil)
	require.NoError(t, reg.Seed(ctx, []string{"a", "b", "c", "d", "e"}, 5))

	_, err := reg.Reserve(ctx, "W1", "ep", 90*time.Second, 10)
	require.NoError(t, err)
	hbw := heartbeat.NewWriter(store, fc, nil, "W1", "ep", time.Minute)
	require.NoError(t, hbw.Beat(ctx))

	cp := compute.NewFake()
	cp.Seed("us-east-1", "W2")

	fc.Advance(31 * time.Minute)

	r := New(reg, store, cp, fc, nil, Config{
		Region:         "us-east-1",
		WorkerID:       "W2",
		Interval:       20 * time.Minute,
		StaleThreshold: 30 * time.Minute,
		CASAttempts:    60,
	})
	reclaimed, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"W1"}, reclaimed)

	doc, err := reg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Assignments)
	assert.Equal(t, 5, doc.NextAvailable, "nextAvailable unchanged by reclaim (hole at 0-4 not reused)")

	all, err := heartbeat.ListAll(ctx, store)
	require.NoError(t, err)
	assert.NotContains(t, all, "W1", "reclaimed worker's heartbeat file is deleted")
}

func TestRunOnceSkipsWhenNotLeader(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	reg := registry.New(store, clock.Real, nil)
	require.NoError(t, reg.Seed(ctx, []string{"a", "b"}, 2))

	cp := compute.NewFake()
	cp.Seed("us-east-1", "worker-a")
	cp.Seed("us-east-1", "worker-z")

	r := New(reg, store, cp, clock.Real, nil, Config{Region: "us-east-1", WorkerID: "worker-z", StaleThreshold: 30 * time.Minute, CASAttempts: 60})
	reclaimed, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Nil(t, reclaimed, "non-leader does not sweep")
}
