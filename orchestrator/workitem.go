// Package orchestrator implements spec.md §4.4's mining orchestrator:
// the challenge puller (G), work-queue builder (H), bounded dispatch
// pool (I), and expiry-abort scanner, plus the submitter wiring (J) from
// package submit.
package orchestrator

import (
	"fmt"

	"berith-chain/minefleet/ledger"
)

// WorkItem is one (address, challenge) pairing awaiting dispatch.
type WorkItem struct {
	Address    string
	Challenge  ledger.QueuedChallenge
	PopCount   int
	IsDonation bool
}

// Key returns the in-progress tracking key "{address}-{challengeId}"
// (spec.md §4.4 step 4: "in-memory set keyed by {address}-{challengeId}").
func (w WorkItem) Key() string {
	return fmt.Sprintf("%s-%s", w.Address, w.Challenge.ChallengeID)
}
