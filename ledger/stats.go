package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"berith-chain/minefleet/objectstore"
)

// StatsKey is the well-known object key for the fleet-wide stats object.
const StatsKey = "solutions-stats.json"

const recentCap = 20

// RecentSolution is one entry of the bounded recentSolutions ring,
// mirrored after the teacher's miner/unconfirmed.go bounded-window idiom
// (a fixed-capacity slice, oldest dropped on overflow) applied here to
// telemetry instead of block confirmation tracking.
type RecentSolution struct {
	Address     string    `json:"address"`
	ChallengeID string    `json:"challengeId"`
	Donation    bool      `json:"donation"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// RecentError is one entry of the bounded recentErrors ring.
type RecentError struct {
	Address     string    `json:"address,omitempty"`
	ChallengeID string    `json:"challengeId,omitempty"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Stats is the solutions-stats.json payload (spec.md §3).
type Stats struct {
	TotalSolutions    int              `json:"totalSolutions"`
	DonationSolutions int              `json:"donationSolutions"`
	TotalErrors       int              `json:"totalErrors"`
	LastUpdated       time.Time        `json:"lastUpdated"`
	RecentSolutions   []RecentSolution `json:"recentSolutions"`
	RecentErrors      []RecentError    `json:"recentErrors"`
}

func pushCapped[T any](ring []T, item T, cap int) []T {
	ring = append(ring, item)
	if len(ring) > cap {
		ring = ring[len(ring)-cap:]
	}
	return ring
}

// StatsStore is the CAS-looped accessor for solutions-stats.json, used
// by the submitter (J) on every submission and every submission error
// (spec.md §4.5 step 5). Up to 5 attempts with ≤100ms jitter; exhaustion
// is swallowed since stats are best-effort telemetry, never truth.
type StatsStore struct {
	store objectstore.Store
	rng   *rand.Rand
}

func NewStatsStore(store objectstore.Store) *StatsStore {
	return &StatsStore{store: store, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

const statsMaxAttempts = 5

func (s *StatsStore) read(ctx context.Context) (Stats, string, error) {
	obj, err := s.store.Get(ctx, StatsKey)
	if err == objectstore.ErrNotFound {
		return Stats{}, "", nil
	}
	if err != nil {
		return Stats{}, "", fmt.Errorf("ledger: read stats: %w", err)
	}
	var st Stats
	if err := json.Unmarshal(obj.Body, &st); err != nil {
		return Stats{}, "", fmt.Errorf("ledger: decode stats: %w", err)
	}
	return st, obj.ETag, nil
}

func (s *StatsStore) casUpdate(ctx context.Context, mutate func(Stats) Stats) error {
	for attempt := 0; attempt < statsMaxAttempts; attempt++ {
		cur, etag, err := s.read(ctx)
		if err != nil {
			return err
		}
		next := mutate(cur)
		body, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("ledger: encode stats: %w", err)
		}
		_, err = s.store.Put(ctx, StatsKey, body, etag)
		if err == nil {
			return nil
		}
		if err != objectstore.ErrPreconditionFailed {
			return fmt.Errorf("ledger: write stats: %w", err)
		}
		jitter := time.Duration(s.rng.Int63n(int64(100 * time.Millisecond)))
		time.Sleep(jitter)
	}
	// Best-effort: stats CAS exhaustion never fails the caller's
	// submission (spec.md §4.5: "the submission is still considered
	// successful").
	return nil
}

// RecordSolution updates aggregate stats for a successful submission
// (spec.md §4.5 step 5, §8 invariant 9).
func (s *StatsStore) RecordSolution(ctx context.Context, address, challengeID string, donation bool, now time.Time) error {
	return s.casUpdate(ctx, func(st Stats) Stats {
		st.TotalSolutions++
		if donation {
			st.DonationSolutions++
		}
		st.LastUpdated = now
		st.RecentSolutions = pushCapped(st.RecentSolutions, RecentSolution{
			Address: address, ChallengeID: challengeID, Donation: donation, SubmittedAt: now,
		}, recentCap)
		return st
	})
}

// RecordError updates aggregate stats for a submission error (spec.md
// §4.5 step 4).
func (s *StatsStore) RecordError(ctx context.Context, address, challengeID, message string, now time.Time) error {
	return s.casUpdate(ctx, func(st Stats) Stats {
		st.TotalErrors++
		st.LastUpdated = now
		st.RecentErrors = pushCapped(st.RecentErrors, RecentError{
			Address: address, ChallengeID: challengeID, Message: message, OccurredAt: now,
		}, recentCap)
		return st
	})
}

// Snapshot returns the current stats without mutating them (operator
// console / TUI dashboard read path).
func (s *StatsStore) Snapshot(ctx context.Context) (Stats, error) {
	st, _, err := s.read(ctx)
	return st, err
}
