// Package ledger implements the challenge cache (D), the per-address
// solutions ledger (C), and fleet-wide stats, exactly per spec.md §3 and
// §4.5.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"berith-chain/minefleet/objectstore"
)

// ChallengesKey is the well-known object key for the challenge cache.
const ChallengesKey = "challenges.json"

// QueuedChallenge mirrors spec.md §3's QueuedChallenge shape exactly.
// Difficulty is a hex string whose set bits form a bitmask (see package
// difficulty).
type QueuedChallenge struct {
	ChallengeID      string    `json:"challengeId"`
	ChallengeNumber  int       `json:"challengeNumber"`
	Day              int       `json:"day"`
	Difficulty       string    `json:"difficulty"`
	NoPreMine        string    `json:"noPreMine"`
	NoPreMineHour    string    `json:"noPreMineHour"`
	LatestSubmission time.Time `json:"latestSubmission"`
	AvailableAt      time.Time `json:"availableAt"`
}

// ChallengeCache is the challenges.json payload.
type ChallengeCache struct {
	Challenges  []QueuedChallenge `json:"challenges"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Region      string            `json:"region"`
}

// ChallengeStore is the CAS-looped accessor over challenges.json, mutated
// by the orchestrator's challenge puller (G).
type ChallengeStore struct {
	store objectstore.Store
}

func NewChallengeStore(store objectstore.Store) *ChallengeStore {
	return &ChallengeStore{store: store}
}

// Read returns the current challenge cache, or an empty one if it has
// never been written.
func (c *ChallengeStore) Read(ctx context.Context) (ChallengeCache, error) {
	cc, _, err := c.read(ctx)
	return cc, err
}

func (c *ChallengeStore) read(ctx context.Context) (ChallengeCache, string, error) {
	obj, err := c.store.Get(ctx, ChallengesKey)
	if err == objectstore.ErrNotFound {
		return ChallengeCache{}, "", nil
	}
	if err != nil {
		return ChallengeCache{}, "", fmt.Errorf("ledger: read challenges: %w", err)
	}
	var cc ChallengeCache
	if err := json.Unmarshal(obj.Body, &cc); err != nil {
		return ChallengeCache{}, "", fmt.Errorf("ledger: decode challenges: %w", err)
	}
	return cc, obj.ETag, nil
}

const challengesMaxAttempts = 5

// Replace CAS-loops a mutation of the challenge cache (spec.md §4.4's
// challenge puller (G) upserts the active challenge each fetch cycle).
// Each attempt re-reads the current object and re-applies mutate against
// fresh data, mirroring ledger/stats.go's casUpdate — a precondition
// failure never retries a Put built from stale data.
func (c *ChallengeStore) Replace(ctx context.Context, region string, mutate func(ChallengeCache) []QueuedChallenge, now time.Time) error {
	for attempt := 0; attempt < challengesMaxAttempts; attempt++ {
		cur, etag, err := c.read(ctx)
		if err != nil {
			return err
		}
		next := ChallengeCache{Challenges: mutate(cur), LastUpdated: now, Region: region}
		body, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("ledger: encode challenges: %w", err)
		}
		_, err = c.store.Put(ctx, ChallengesKey, body, etag)
		if err == nil {
			return nil
		}
		if err == objectstore.ErrPreconditionFailed {
			continue
		}
		return fmt.Errorf("ledger: write challenges: %w", err)
	}
	return fmt.Errorf("ledger: write challenges: contention budget exhausted")
}
