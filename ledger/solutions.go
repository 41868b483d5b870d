package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/holiman/bloomfilter/v2"

	"berith-chain/minefleet/objectstore"
)

// Solution is one entry in a per-address solutions file (spec.md §3).
type Solution struct {
	ChallengeID string    `json:"challengeId"`
	Nonce       string    `json:"nonce"`
	SubmittedAt time.Time `json:"submittedAt"`
	WorkerID    string    `json:"workerId,omitempty"`
}

// SolutionFile is the solutions/{address}.json payload.
type SolutionFile struct {
	Address     string     `json:"address"`
	Solutions   []Solution `json:"solutions"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

func solutionsKey(address string) string {
	return fmt.Sprintf("solutions/%s.json", address)
}

// challengeHash folds a challengeId into the 64-bit hash the bloom
// filter indexes on; the filter only needs membership, not recovery.
func challengeHash(challengeID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(challengeID))
	return h.Sum64()
}

// bloomExpectedItems and bloomFalsePositiveRate size each per-address
// filter: a few thousand challenges over a worker's lifetime at well
// under 1% false-positive probability.
const (
	bloomExpectedItems     = 4096
	bloomFalsePositiveRate = 0.01
)

// SolutionsStore is the per-address ledger accessor (component C). It is
// blind-write (spec.md §5: "single logical writer per key in steady
// state"), additionally backed by a per-address bloom filter held in
// memory so repeat HasSolution checks against already-seen challenges
// (the common case once a worker is warmed up) skip the object store
// round trip entirely. The filter is rebuilt from the ledger on boot via
// WarmBloomFilters and kept current by RecordSolution; it can only
// produce false positives, never false negatives, so a "maybe" always
// falls through to the exact Read-based check. An address with no warmed
// filter always takes the Read-based check.
type SolutionsStore struct {
	store objectstore.Store

	mu     sync.Mutex
	blooms map[string]*bloomfilter.Filter
}

func NewSolutionsStore(store objectstore.Store) *SolutionsStore {
	return &SolutionsStore{store: store, blooms: make(map[string]*bloomfilter.Filter)}
}

func newAddressFilter() *bloomfilter.Filter {
	f, err := bloomfilter.NewOptimal(bloomExpectedItems, bloomFalsePositiveRate)
	if err != nil {
		// Size/rate constants above are fixed and valid; this only
		// trips if they're changed to something degenerate.
		panic(fmt.Sprintf("ledger: invalid bloom filter parameters: %v", err))
	}
	return f
}

// filterFor returns address's bloom filter and whether WarmBloomFilters
// has built one for it.
func (s *SolutionsStore) filterFor(address string) (*bloomfilter.Filter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.blooms[address]
	return f, ok
}

// WarmBloomFilters rebuilds the in-memory bloom filters for addresses
// from the ledger, for use at worker boot before any HasSolution calls
// land (spec.md's dedup fast-path needs a warm filter to be useful).
func (s *SolutionsStore) WarmBloomFilters(ctx context.Context, addresses []string) error {
	for _, addr := range addresses {
		sf, err := s.Read(ctx, addr)
		if err != nil {
			return err
		}
		f := newAddressFilter()
		for _, sol := range sf.Solutions {
			f.Add(challengeHash(sol.ChallengeID))
		}
		s.mu.Lock()
		s.blooms[addr] = f
		s.mu.Unlock()
	}
	return nil
}

// Read returns the current solution file for address, or an empty one
// if it has never been written (spec.md §3: "Created on first
// successful submission").
func (s *SolutionsStore) Read(ctx context.Context, address string) (SolutionFile, error) {
	obj, err := s.store.Get(ctx, solutionsKey(address))
	if err == objectstore.ErrNotFound {
		return SolutionFile{Address: address}, nil
	}
	if err != nil {
		return SolutionFile{}, fmt.Errorf("ledger: read solutions %s: %w", address, err)
	}
	var sf SolutionFile
	if err := json.Unmarshal(obj.Body, &sf); err != nil {
		return SolutionFile{}, fmt.Errorf("ledger: decode solutions %s: %w", address, err)
	}
	return sf, nil
}

// HasSolution reports whether address already has a recorded solution
// for challengeID (spec.md §8: "hasSolution returns true after
// recordSolution with the same pair; false before"). The bloom filter
// pre-check can only say "definitely not" or "maybe"; a "definitely not"
// skips the object store read, a "maybe" falls through to the exact
// check below.
func (s *SolutionsStore) HasSolution(ctx context.Context, address, challengeID string) (bool, error) {
	if f, ok := s.filterFor(address); ok && !f.Contains(challengeHash(challengeID)) {
		return false, nil
	}
	sf, err := s.Read(ctx, address)
	if err != nil {
		return false, err
	}
	for _, sol := range sf.Solutions {
		if sol.ChallengeID == challengeID {
			return true, nil
		}
	}
	return false, nil
}

// RecordSolution appends a solution for (address, challengeID),
// preserving the "at most one record per challengeId" invariant (spec.md
// §3, §8 invariant 5) and the idempotence property (§8: "recordSolution
// followed by any number of repeated calls is equivalent to one call").
func (s *SolutionsStore) RecordSolution(ctx context.Context, address string, sol Solution, now time.Time) error {
	sf, err := s.Read(ctx, address)
	if err != nil {
		return err
	}
	sf.Address = address
	for _, existing := range sf.Solutions {
		if existing.ChallengeID == sol.ChallengeID {
			return nil // already recorded: idempotent no-op.
		}
	}
	sf.Solutions = append(sf.Solutions, sol)
	sf.LastUpdated = now

	body, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("ledger: encode solutions %s: %w", address, err)
	}
	if _, err := s.store.Put(ctx, solutionsKey(address), body, ""); err != nil {
		return fmt.Errorf("ledger: write solutions %s: %w", address, err)
	}
	if f, ok := s.filterFor(address); ok {
		f.Add(challengeHash(sol.ChallengeID))
	}
	return nil
}
