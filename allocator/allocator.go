// Package allocator implements component E of spec.md §4.2: the
// worker-side address acquisition path, cache-first ahead of the
// registry's CAS loop.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"berith-chain/minefleet/cache"
	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/registry"
)

// Config controls the wait-for-seed retry loop (spec.md §4.2 step 4).
type Config struct {
	StaleThreshold  time.Duration
	ReserveAttempts int
	SeedWaitRetries int
	SeedWaitDelay   time.Duration
}

// Allocator wraps a registry.Registry with a local cache.Store so that a
// restarting worker never re-contends the registry for addresses it
// already holds.
type Allocator struct {
	reg    *registry.Registry
	cache  *cache.Store
	clock  clock.Clock
	log    log.Logger
	config Config
}

func New(reg *registry.Registry, c *cache.Store, ck clock.Clock, logger log.Logger, cfg Config) *Allocator {
	if ck == nil {
		ck = clock.Real
	}
	if logger == nil {
		logger = log.Root
	}
	return &Allocator{reg: reg, cache: c, clock: ck, log: logger, config: cfg}
}

// Acquire returns the worker's address slice, per spec.md §4.2:
//  1. Cache-first: a matching cached entry is returned without touching
//     the registry at all.
//  2. Otherwise reserve via the registry's CAS loop.
//  3. Persist the result to cache before returning it.
//  4. If the registry document isn't seeded yet, wait and retry up to
//     SeedWaitRetries times.
func (a *Allocator) Acquire(ctx context.Context, workerID, publicEndpoint string) ([]string, error) {
	if entry, ok, err := a.cache.Load(workerID); err != nil {
		a.log.Warn("allocator: cache load failed, falling back to registry", "err", err)
	} else if ok {
		a.log.Info("allocator: cache hit", "workerId", workerID, "addresses", len(entry.Addresses))
		return entry.Addresses, nil
	}

	for attempt := 0; attempt < a.config.SeedWaitRetries; attempt++ {
		addrs, err := a.reg.Reserve(ctx, workerID, publicEndpoint, a.config.StaleThreshold, a.config.ReserveAttempts)
		switch {
		case err == nil:
			if saveErr := a.cache.Save(cache.Entry{WorkerID: workerID, Addresses: addrs}); saveErr != nil {
				a.log.Warn("allocator: cache save failed", "err", saveErr)
			}
			a.log.Info("allocator: reserved", "workerId", workerID, "addresses", len(addrs))
			return addrs, nil
		case errors.Is(err, registry.ErrNotSeeded):
			a.log.Warn("allocator: registry not yet seeded, waiting", "attempt", attempt+1)
			select {
			case <-a.clock.After(a.config.SeedWaitDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("allocator: registry still not seeded after %d attempts", a.config.SeedWaitRetries)
}
