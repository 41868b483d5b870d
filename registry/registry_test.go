package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/objectstore/memstore"
)

func testAddresses(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "0xaddr" + string(rune('a'+i))
	}
	return out
}

func TestSeedThenReserveDisjoint(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fc := clock.NewFake(time.Unix(0, 0))
	r := New(store, fc, nil)

	require.NoError(t, r.Seed(ctx, testAddresses(10), 2))

	a1, err := r.Reserve(ctx, "worker-1", "1.2.3.4:9000", 90*time.Second, 10)
	require.NoError(t, err)
	a2, err := r.Reserve(ctx, "worker-2", "1.2.3.5:9000", 90*time.Second, 10)
	require.NoError(t, err)

	assert.Len(t, a1, 2)
	assert.Len(t, a2, 2)
	assert.NotEqual(t, a1, a2, "disjoint ranges: no two workers share an address")
}

func TestReserveIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := New(store, clock.NewFake(time.Unix(0, 0)), nil)
	require.NoError(t, r.Seed(ctx, testAddresses(10), 2))

	a1, err := r.Reserve(ctx, "worker-1", "ep", 90*time.Second, 10)
	require.NoError(t, err)
	a2, err := r.Reserve(ctx, "worker-1", "ep", 90*time.Second, 10)
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "re-reserving the same worker returns the same addresses without consuming new range")
}

func TestReserveNotSeeded(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := New(store, clock.NewFake(time.Unix(0, 0)), nil)

	_, err := r.Reserve(ctx, "worker-1", "ep", 90*time.Second, 10)
	assert.ErrorIs(t, err, ErrNotSeeded)
}

func TestReserveExhausted(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := New(store, clock.NewFake(time.Unix(0, 0)), nil)
	require.NoError(t, r.Seed(ctx, testAddresses(4), 2))

	_, err := r.Reserve(ctx, "worker-1", "ep", 90*time.Second, 10)
	require.NoError(t, err)
	_, err = r.Reserve(ctx, "worker-2", "ep", 90*time.Second, 10)
	require.NoError(t, err)
	_, err = r.Reserve(ctx, "worker-3", "ep", 90*time.Second, 10)
	assert.ErrorIs(t, err, ErrRegistryExhausted)
}

func TestReserveRetriesOnContention(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	// clock.Real here: the backoff loop's real sleeps are short for a
	// single injected failure, and exercising the real scheduling path
	// avoids racing a fake clock's internal state from two goroutines.
	r := New(store, clock.Real, nil)
	require.NoError(t, r.Seed(ctx, testAddresses(10), 2))

	store.FailPutN = 1
	addrs, err := r.Reserve(ctx, "worker-1", "ep", 90*time.Second, 10)
	require.NoError(t, err)
	assert.Len(t, addrs, 2)
}

func TestReclaimDropsStaleAssignments(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fc := clock.NewFake(time.Unix(0, 0))
	r := New(store, fc, nil)
	require.NoError(t, r.Seed(ctx, testAddresses(10), 2))

	_, err := r.Reserve(ctx, "worker-1", "ep", 90*time.Second, 10)
	require.NoError(t, err)

	fc.Advance(31 * time.Minute)

	reclaimed, err := r.Reclaim(ctx, map[string]time.Time{}, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"worker-1"}, reclaimed)

	doc, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.NextAvailable, "reclaim never lowers nextAvailable")
}

func TestSeedRejectsInvalidatingShrink(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := New(store, clock.NewFake(time.Unix(0, 0)), nil)
	require.NoError(t, r.Seed(ctx, testAddresses(10), 2))

	_, err := r.Reserve(ctx, "worker-1", "ep", 90*time.Second, 10)
	require.NoError(t, err)

	err = r.Seed(ctx, testAddresses(1), 2)
	assert.Error(t, err, "shrinking the address list below a live assignment's range must fail loudly")
}
