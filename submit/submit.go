// Package submit implements the Submitter (component J, spec.md §4.5):
// POST a mined solution to the Mine API, merge it into the per-address
// ledger, and update fleet-wide stats.
package submit

import (
	"context"
	"errors"
	"fmt"

	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/mineapi"
)

// Submitter wires the Mine API, the per-address solutions ledger, and
// the stats ledger together per spec.md §4.5's five steps.
type Submitter struct {
	api       mineapi.API
	solutions *ledger.SolutionsStore
	stats     *ledger.StatsStore
	clock     clock.Clock
	log       log.Logger
}

func New(api mineapi.API, solutions *ledger.SolutionsStore, stats *ledger.StatsStore, ck clock.Clock, logger log.Logger) *Submitter {
	if ck == nil {
		ck = clock.Real
	}
	if logger == nil {
		logger = log.Root
	}
	return &Submitter{api: api, solutions: solutions, stats: stats, clock: ck, log: logger}
}

// Submit implements spec.md §4.5:
//  1. POST (address, challengeId, nonce) to the Mine API.
//  2. On 2xx: merge into solutions/{address}.json, unless donation (stats
//     only, never a per-address file — spec.md §4.4's donation
//     paragraph).
//  3. On 409/duplicate: treat as success, still record locally to
//     suppress future retries.
//  4. On other failure: recordError.
//  5. Always update stats (best-effort on CAS exhaustion).
func (s *Submitter) Submit(ctx context.Context, address, challengeID, nonce, workerID string, donation bool) error {
	now := s.clock.Now()
	_, err := s.api.Submit(ctx, address, challengeID, nonce)

	switch {
	case err == nil, errors.Is(err, mineapi.ErrDuplicate):
		if !donation {
			sol := ledger.Solution{ChallengeID: challengeID, Nonce: nonce, SubmittedAt: now, WorkerID: workerID}
			if recErr := s.solutions.RecordSolution(ctx, address, sol, now); recErr != nil {
				s.log.Warn("submit: failed to record solution locally", "address", address, "challengeId", challengeID, "err", recErr)
			}
		}
		if statErr := s.stats.RecordSolution(ctx, address, challengeID, donation, now); statErr != nil {
			s.log.Warn("submit: stats update failed", "err", statErr)
		}
		return nil

	default:
		if recErr := s.stats.RecordError(ctx, address, challengeID, err.Error(), now); recErr != nil {
			s.log.Warn("submit: recordError failed", "err", recErr)
		}
		return fmt.Errorf("submit: %s/%s: %w", address, challengeID, err)
	}
}
