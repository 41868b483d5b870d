// Package registry implements the fleet-wide address allocator's durable
// ledger (spec.md §3 "Registry", §4.1 component A): a single
// registry.json object mutated only through compare-and-set loops over
// objectstore.Store.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/objectstore"
)

// Key is the well-known object key for the registry document.
const Key = "registry.json"

// ErrRegistryContention is returned when the CAS retry budget for an
// operation is exhausted (spec.md §4.1 step 4).
var ErrRegistryContention = errors.New("registry: contention budget exhausted")

// ErrRegistryExhausted is returned by Reserve when there is no room left
// for a new K-sized slice (spec.md §4.2 step 2).
var ErrRegistryExhausted = errors.New("registry: address space exhausted")

// ErrNotSeeded is returned by Reserve while the registry object does not
// exist yet; callers retry per spec.md §4.2 step 4.
var ErrNotSeeded = errors.New("registry: not yet seeded")

// Assignment binds one worker to a contiguous address range (spec.md §3).
type Assignment struct {
	WorkerID       string    `json:"workerId"`
	PublicEndpoint string    `json:"publicEndpoint"`
	StartAddress   int       `json:"startAddress"`
	EndAddress     int       `json:"endAddress"`
	Addresses      []string  `json:"addresses"`
	AssignedAt     time.Time `json:"assignedAt"`
	LastHeartbeat  time.Time `json:"lastHeartbeat,omitempty"`
}

// Document is the registry.json payload.
type Document struct {
	Addresses            []string              `json:"addresses"`
	NextAvailable        int                   `json:"nextAvailable"`
	Assignments          map[string]Assignment `json:"assignments"`
	AddressesPerInstance int                   `json:"addressesPerInstance"`
}

func emptyDocument() Document {
	return Document{Assignments: make(map[string]Assignment)}
}

// Registry is the CAS-looped accessor over one registry.json object.
type Registry struct {
	store objectstore.Store
	clock clock.Clock
	log   log.Logger
	rng   *rand.Rand
}

// New builds a Registry over store. log and ck may be nil, in which case
// defaults (log.Root, clock.Real) are used.
func New(store objectstore.Store, ck clock.Clock, logger log.Logger) *Registry {
	if ck == nil {
		ck = clock.Real
	}
	if logger == nil {
		logger = log.Root
	}
	return &Registry{store: store, clock: ck, log: logger, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// read loads the current document and its ETag. A missing object yields
// an empty Document with etag "" so Seed can perform the initial write.
func (r *Registry) read(ctx context.Context) (Document, string, error) {
	obj, err := r.store.Get(ctx, Key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return emptyDocument(), "", nil
	}
	if err != nil {
		return Document{}, "", err
	}
	var doc Document
	if err := json.Unmarshal(obj.Body, &doc); err != nil {
		return Document{}, "", fmt.Errorf("registry: decode: %w", err)
	}
	if doc.Assignments == nil {
		doc.Assignments = make(map[string]Assignment)
	}
	return doc, obj.ETag, nil
}

func (r *Registry) write(ctx context.Context, doc Document, etag string) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("registry: encode: %w", err)
	}
	return r.store.Put(ctx, Key, body, etag)
}

// backoff implements spec.md §4.1 step 4: exponential, base 1s cap 10s,
// with jitter so concurrent retriers don't lock-step.
func (r *Registry) backoff(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	jitter := time.Duration(r.rng.Int63n(int64(d) / 4))
	return d + jitter
}

// casLoop is the generic read-modify-conditional-write retry loop shared
// by Seed, Reserve, and Reclaim (spec.md §4.1).
//
// mutate receives the current document and returns the desired next
// document plus whether any change was actually needed (false short-
// circuits without writing, e.g. idempotent re-reservation).
func (r *Registry) casLoop(ctx context.Context, maxAttempts int, mutate func(Document) (Document, bool, error)) (Document, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		doc, etag, err := r.read(ctx)
		if err != nil {
			return Document{}, err
		}
		next, changed, err := mutate(doc)
		if err != nil {
			return Document{}, err
		}
		if !changed {
			return next, nil
		}
		if _, err := r.write(ctx, next, etag); err != nil {
			if errors.Is(err, objectstore.ErrPreconditionFailed) {
				select {
				case <-r.clock.After(r.backoff(attempt)):
				case <-ctx.Done():
					return Document{}, ctx.Err()
				}
				continue
			}
			return Document{}, err
		}
		return next, nil
	}
	return Document{}, ErrRegistryContention
}

// Seed creates or refreshes the registry's address list and K, preserving
// any existing assignments (spec.md §4.1 "Seeding preserves any existing
// assignments"). Re-validates that every live Assignment still fits
// within [0, len(addresses)); a violation is a fatal configuration error,
// never silently patched.
func (r *Registry) Seed(ctx context.Context, addresses []string, addressesPerInstance int) error {
	const maxAttempts = 10
	_, err := r.casLoop(ctx, maxAttempts, func(doc Document) (Document, bool, error) {
		next := doc
		next.Addresses = addresses
		next.AddressesPerInstance = addressesPerInstance
		if next.Assignments == nil {
			next.Assignments = make(map[string]Assignment)
		}
		maxEnd := -1
		for _, a := range next.Assignments {
			if a.EndAddress >= len(addresses) || a.StartAddress < 0 || a.StartAddress > a.EndAddress {
				return Document{}, false, fmt.Errorf("registry: seed invalidates assignment for %s: range [%d,%d] outside [0,%d)", a.WorkerID, a.StartAddress, a.EndAddress, len(addresses))
			}
			if a.EndAddress > maxEnd {
				maxEnd = a.EndAddress
			}
		}
		if next.NextAvailable < maxEnd+1 {
			next.NextAvailable = maxEnd + 1
		}
		return next, true, nil
	})
	if err != nil {
		return err
	}
	r.log.Info("registry seeded", "addresses", len(addresses), "perInstance", addressesPerInstance)
	return nil
}

// Reserve implements spec.md §4.2 step 2: idempotent re-reservation,
// opportunistic tight-threshold reclaim, then allocate the next K-sized
// slice. staleThreshold is the allocator's tight threshold (default 90s).
func (r *Registry) Reserve(ctx context.Context, workerID, publicEndpoint string, staleThreshold time.Duration, maxAttempts int) ([]string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		doc, etag, err := r.read(ctx)
		if err != nil {
			return nil, err
		}
		if existing, ok := doc.Assignments[workerID]; ok {
			// Idempotent re-reservation: nothing to write.
			return existing.Addresses, nil
		}
		if len(doc.Addresses) == 0 {
			return nil, ErrNotSeeded
		}

		next := cloneDocument(doc)
		now := r.clock.Now()

		// Opportunistic reclaim (tight threshold): never lowers nextAvailable.
		for id, a := range next.Assignments {
			last := a.LastHeartbeat
			if last.IsZero() || a.AssignedAt.After(last) {
				last = a.AssignedAt
			}
			if now.Sub(last) > staleThreshold {
				delete(next.Assignments, id)
			}
		}

		K := next.AddressesPerInstance
		if next.NextAvailable+K-1 >= len(next.Addresses) {
			return nil, ErrRegistryExhausted
		}
		start := next.NextAvailable
		end := start + K - 1
		addrs := make([]string, K)
		copy(addrs, next.Addresses[start:end+1])
		next.Assignments[workerID] = Assignment{
			WorkerID:       workerID,
			PublicEndpoint: publicEndpoint,
			StartAddress:   start,
			EndAddress:     end,
			Addresses:      addrs,
			AssignedAt:     now,
			LastHeartbeat:  now,
		}
		next.NextAvailable = end + 1

		if _, err := r.write(ctx, next, etag); err != nil {
			if errors.Is(err, objectstore.ErrPreconditionFailed) {
				select {
				case <-r.clock.After(r.backoff(attempt)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			return nil, err
		}
		return addrs, nil
	}
	return nil, ErrRegistryContention
}

func cloneDocument(d Document) Document {
	next := Document{
		Addresses:            d.Addresses,
		NextAvailable:        d.NextAvailable,
		AddressesPerInstance: d.AddressesPerInstance,
		Assignments:          make(map[string]Assignment, len(d.Assignments)),
	}
	for k, v := range d.Assignments {
		next.Assignments[k] = v
	}
	return next
}

// Reclaim implements spec.md §4.3 step 2: drop every assignment whose
// heartbeat (or, lacking one, assignedAt) is older than staleThreshold
// (the loose periodic threshold). nextAvailable is never modified (step
// 3: "Do not modify nextAvailable").
func (r *Registry) Reclaim(ctx context.Context, heartbeats map[string]time.Time, staleThreshold time.Duration, maxAttempts int) ([]string, error) {
	var reclaimed []string
	_, err := r.casLoop(ctx, maxAttempts, func(doc Document) (Document, bool, error) {
		next := cloneDocument(doc)
		reclaimed = reclaimed[:0]
		now := r.clock.Now()
		for id, a := range next.Assignments {
			hb, ok := heartbeats[id]
			var stale bool
			if !ok {
				stale = now.Sub(a.AssignedAt) > staleThreshold
			} else {
				stale = now.Sub(hb) > staleThreshold
			}
			if stale {
				delete(next.Assignments, id)
				reclaimed = append(reclaimed, id)
			}
		}
		if len(reclaimed) == 0 {
			return doc, false, nil
		}
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	return reclaimed, nil
}

// Snapshot returns the current document without mutating it, for
// read-only diagnostics (operator console, TUI dashboard).
func (r *Registry) Snapshot(ctx context.Context) (Document, error) {
	doc, _, err := r.read(ctx)
	return doc, err
}
