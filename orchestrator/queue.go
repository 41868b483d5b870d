package orchestrator

import (
	"context"
	"sort"
	"time"

	"berith-chain/minefleet/difficulty"
	"berith-chain/minefleet/donation"
	"berith-chain/minefleet/ledger"
)

// BuildQueue implements component H (spec.md §4.4 step 3): for each
// valid challenge, for each local address, emit a WorkItem unless the
// solutions ledger already contains that (address, challengeId). Sorted
// by descending popcount (easiest first, spec.md §8 invariant 7).
//
// Challenges whose latestSubmission has already passed are dropped
// ahead of the queue rebuild (spec.md §4.4 step 2), by the caller
// filtering challenges before calling BuildQueue.
func BuildQueue(ctx context.Context, solutions *ledger.SolutionsStore, addresses []string, challenges []ledger.QueuedChallenge) ([]WorkItem, error) {
	var items []WorkItem
	for _, ch := range challenges {
		mask, err := difficulty.Parse(ch.Difficulty)
		if err != nil {
			continue // malformed difficulty: skip rather than fail the whole rebuild.
		}
		for _, addr := range addresses {
			has, err := solutions.HasSolution(ctx, addr, ch.ChallengeID)
			if err != nil {
				return nil, err
			}
			if has {
				continue
			}
			items = append(items, WorkItem{Address: addr, Challenge: ch, PopCount: mask.PopCount()})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].PopCount > items[j].PopCount })
	return items, nil
}

// EasiestChallenge returns the challenge with the most set bits among
// valid (non-expired) challenges, for the donation item (spec.md §4.4's
// donation paragraph: "the donation item uses the easiest available
// challenge").
func EasiestChallenge(challenges []ledger.QueuedChallenge) (ledger.QueuedChallenge, bool) {
	var best ledger.QueuedChallenge
	bestPop := -1
	found := false
	for _, ch := range challenges {
		mask, err := difficulty.Parse(ch.Difficulty)
		if err != nil {
			continue
		}
		if pc := mask.PopCount(); pc > bestPop {
			bestPop, best, found = pc, ch, true
		}
	}
	return best, found
}

// MaybeInsertDonation appends a donation WorkItem to items if the
// interleaver says one is due this round and a donation address can be
// fetched (spec.md §4.4/§4.7: "If the donation endpoint fails, regular
// items proceed with no donation items").
func MaybeInsertDonation(ctx context.Context, in *donation.Interleaver, provider donation.Provider, challenges []ledger.QueuedChallenge, items []WorkItem) []WorkItem {
	if !in.Tick() {
		return items
	}
	ch, ok := EasiestChallenge(challenges)
	if !ok {
		return items
	}
	addr, err := provider.DonationAddress(ctx)
	if err != nil {
		return items
	}
	return append(items, WorkItem{Address: addr, Challenge: ch, IsDonation: true})
}

// DropExpired filters out challenges whose latestSubmission has already
// passed (spec.md §4.4 step 2).
func DropExpired(challenges []ledger.QueuedChallenge, now time.Time) []ledger.QueuedChallenge {
	var out []ledger.QueuedChallenge
	for _, ch := range challenges {
		if ch.LatestSubmission.After(now) {
			out = append(out, ch)
		}
	}
	return out
}
