package allocator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/cache"
	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/objectstore/memstore"
	"berith-chain/minefleet/registry"
)

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "minefleet-cache-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	c, err := cache.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func defaultConfig() Config {
	return Config{
		StaleThreshold:  90 * time.Second,
		ReserveAttempts: 10,
		SeedWaitRetries: 3,
		SeedWaitDelay:   time.Second,
	}
}

func TestAcquireReservesThenCaches(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := registry.New(store, clock.Real, nil)
	require.NoError(t, r.Seed(ctx, []string{"a", "b", "c", "d"}, 2))

	c := newTestCache(t)
	a := New(r, c, clock.Real, nil, defaultConfig())

	addrs, err := a.Acquire(ctx, "worker-1", "1.2.3.4:9000")
	require.NoError(t, err)
	assert.Len(t, addrs, 2)

	entry, ok, err := c.Load("worker-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, addrs, entry.Addresses)
}

func TestAcquireCacheHitSkipsRegistry(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := registry.New(store, clock.Real, nil)
	// Deliberately never seeded: a cache hit must not need the registry.

	c := newTestCache(t)
	require.NoError(t, c.Save(cache.Entry{WorkerID: "worker-1", Addresses: []string{"x", "y"}}))

	a := New(r, c, clock.Real, nil, defaultConfig())
	addrs, err := a.Acquire(ctx, "worker-1", "1.2.3.4:9000")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, addrs)
}

func TestAcquireWaitsForSeed(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := registry.New(store, clock.Real, nil)
	c := newTestCache(t)
	cfg := defaultConfig()
	cfg.SeedWaitDelay = 10 * time.Millisecond
	cfg.SeedWaitRetries = 2
	a := New(r, c, clock.Real, nil, cfg)

	_, err := a.Acquire(ctx, "worker-1", "ep")
	assert.Error(t, err, "unseeded registry exhausts wait retries and surfaces an error")
}
