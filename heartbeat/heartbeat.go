// Package heartbeat implements component B of spec.md §4.3: each worker
// writes its own liveness file every minute, blind-write (no CAS needed,
// single logical writer per key).
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/objectstore"
)

// Record is the heartbeats/{workerId}.json payload (spec.md §3).
type Record struct {
	LastHeartbeat  time.Time `json:"lastHeartbeat"`
	PublicEndpoint string    `json:"publicEndpoint,omitempty"`
}

func key(workerID string) string {
	return fmt.Sprintf("heartbeats/%s.json", workerID)
}

// Writer periodically beats a worker's liveness file.
type Writer struct {
	store          objectstore.Store
	clock          clock.Clock
	log            log.Logger
	workerID       string
	publicEndpoint string
	interval       time.Duration
}

func NewWriter(store objectstore.Store, ck clock.Clock, logger log.Logger, workerID, publicEndpoint string, interval time.Duration) *Writer {
	if ck == nil {
		ck = clock.Real
	}
	if logger == nil {
		logger = log.Root
	}
	return &Writer{store: store, clock: ck, log: logger, workerID: workerID, publicEndpoint: publicEndpoint, interval: interval}
}

// Beat writes a single heartbeat immediately.
func (w *Writer) Beat(ctx context.Context) error {
	rec := Record{LastHeartbeat: w.clock.Now(), PublicEndpoint: w.publicEndpoint}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("heartbeat: encode: %w", err)
	}
	if _, err := w.store.Put(ctx, key(w.workerID), body, ""); err != nil {
		return fmt.Errorf("heartbeat: put: %w", err)
	}
	return nil
}

// Run beats on Writer's interval until ctx is cancelled. Transient
// failures are logged and do not stop the loop (spec.md §7: heartbeat
// write failure is a transient/retry case, not fatal).
func (w *Writer) Run(ctx context.Context) {
	if err := w.Beat(ctx); err != nil {
		w.log.Warn("heartbeat: initial beat failed", "worker", w.workerID, "err", err)
	}
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := w.Beat(ctx); err != nil {
				w.log.Warn("heartbeat: beat failed", "worker", w.workerID, "err", err)
			}
		}
	}
}

// ListAll reads every heartbeat object under the well-known prefix,
// building the {workerId -> lastHeartbeat} map the reclaimer needs
// (spec.md §4.3 step 1).
func ListAll(ctx context.Context, store objectstore.Store) (map[string]time.Time, error) {
	entries, err := store.List(ctx, "heartbeats/")
	if err != nil {
		return nil, fmt.Errorf("heartbeat: list: %w", err)
	}
	out := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		obj, err := store.Get(ctx, e.Key)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(obj.Body, &rec); err != nil {
			continue
		}
		workerID := workerIDFromKey(e.Key)
		out[workerID] = rec.LastHeartbeat
	}
	return out, nil
}

func workerIDFromKey(k string) string {
	const prefix = "heartbeats/"
	const suffix = ".json"
	if len(k) > len(prefix)+len(suffix) {
		return k[len(prefix) : len(k)-len(suffix)]
	}
	return k
}

// Delete removes a worker's heartbeat object (spec.md §3: "deleted by (F)
// when reclaiming").
func Delete(ctx context.Context, store objectstore.Store, workerID string) error {
	return store.Delete(ctx, key(workerID))
}
