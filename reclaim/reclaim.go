// Package reclaim implements component F of spec.md §4.3: deterministic
// leader election over live worker identities, and the leader-only
// periodic reclaimer that drops dead workers' registry assignments and
// heartbeat files.
package reclaim

import (
	"context"
	"fmt"
	"sort"
	"time"

	"berith-chain/minefleet/compute"
	"berith-chain/minefleet/heartbeat"
	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/objectstore"
	"berith-chain/minefleet/registry"
)

// IsLeader implements spec.md §4.3's election rule: query the compute
// provider for all live worker identities in region, sort them, and the
// calling workerID is leader iff it sorts first. Cheap, lock-free, and
// tolerant of the occasional double-leader race (the registry's CAS
// discipline resolves any resulting write conflict).
func IsLeader(ctx context.Context, cp compute.Provider, region, workerID string) (bool, error) {
	live, err := cp.ListLive(ctx, region)
	if err != nil {
		return false, fmt.Errorf("reclaim: list live: %w", err)
	}
	if len(live) == 0 {
		return false, nil
	}
	ids := make([]string, len(live))
	for i, inst := range live {
		ids[i] = inst.WorkerID
	}
	sort.Strings(ids)
	return ids[0] == workerID, nil
}

// Config controls the reclaimer's cadence and CAS retry budget (spec.md
// §4.1: "~60 attempts reclaimer").
type Config struct {
	Region         string
	WorkerID       string
	Interval       time.Duration
	StaleThreshold time.Duration
	CASAttempts    int
}

// Reclaimer periodically checks leadership and, when leader, sweeps dead
// workers' assignments and heartbeat files.
type Reclaimer struct {
	reg    *registry.Registry
	store  objectstore.Store
	cp     compute.Provider
	clock  clock.Clock
	log    log.Logger
	config Config
}

func New(reg *registry.Registry, store objectstore.Store, cp compute.Provider, ck clock.Clock, logger log.Logger, cfg Config) *Reclaimer {
	if ck == nil {
		ck = clock.Real
	}
	if logger == nil {
		logger = log.Root
	}
	return &Reclaimer{reg: reg, store: store, cp: cp, clock: ck, log: logger, config: cfg}
}

// RunOnce performs one election-and-sweep cycle (spec.md §4.3 steps 1-3),
// returning the workerIDs reclaimed, or nil if this worker isn't leader
// this cycle.
func (r *Reclaimer) RunOnce(ctx context.Context) ([]string, error) {
	leader, err := IsLeader(ctx, r.cp, r.config.Region, r.config.WorkerID)
	if err != nil {
		return nil, err
	}
	if !leader {
		return nil, nil
	}

	heartbeats, err := heartbeat.ListAll(ctx, r.store)
	if err != nil {
		return nil, err
	}

	reclaimed, err := r.reg.Reclaim(ctx, heartbeats, r.config.StaleThreshold, r.config.CASAttempts)
	if err != nil {
		return nil, fmt.Errorf("reclaim: registry reclaim: %w", err)
	}

	for _, workerID := range reclaimed {
		if err := heartbeat.Delete(ctx, r.store, workerID); err != nil {
			r.log.Warn("reclaim: failed to delete stale heartbeat", "worker", workerID, "err", err)
		}
	}
	if len(reclaimed) > 0 {
		r.log.Info("reclaim: swept stale assignments", "workers", reclaimed)
	}
	return reclaimed, nil
}

// Run loops RunOnce on Config.Interval until ctx is cancelled (spec.md
// §4.3: "on each scheduled tick (every ~20 minutes)").
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Warn("reclaim: cycle failed", "err", err)
			}
		}
	}
}
