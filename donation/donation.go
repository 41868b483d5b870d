// Package donation implements spec.md §4.7's donation interleaving: on
// every Nth work-queue rebuild (default 20), the work-queue builder adds
// one donation WorkItem using the easiest available challenge and a
// freshly fetched donation address. The count is of queue rebuilds, not
// of regular WorkItems. Donation endpoint failures degrade to "no
// donation item this round" without blocking regular items.
package donation

import (
	"context"
	"fmt"

	"berith-chain/minefleet/mineapi"
)

// Provider resolves a fresh donation destination address. Kept as its
// own injected capability (spec.md §9's open-question resolution: "never
// a hardcoded literal") rather than a hardcoded endpoint, since the Mine
// API's donation address source is operator-configurable.
type Provider interface {
	DonationAddress(ctx context.Context) (string, error)
}

// StaticProvider returns a donation address supplied directly by
// operator configuration, since spec.md's Mine API surface has no dedicated
// "get donation address" endpoint — only POST /donate_to/{destination}/...
// which already expects the caller to name the destination.
type StaticProvider struct {
	Address string
}

func (s StaticProvider) DonationAddress(context.Context) (string, error) {
	if s.Address == "" {
		return "", fmt.Errorf("donation: no donation address configured")
	}
	return s.Address, nil
}

// Interleaver reports every Nth call to Tick as due for a donation item.
// orchestrator.MaybeInsertDonation calls Tick once per work-queue
// rebuild, so N counts rebuilds, not regular WorkItems.
type Interleaver struct {
	every int
	count int
}

func NewInterleaver(every int) *Interleaver {
	if every <= 0 {
		every = 20
	}
	return &Interleaver{every: every}
}

// Tick increments the call count and reports whether a donation item is
// due this round.
func (in *Interleaver) Tick() bool {
	in.count++
	if in.count >= in.every {
		in.count = 0
		return true
	}
	return false
}

// Submit posts a donation solution via the Mine API (spec.md §4.7,
// §6's POST /donate_to/{destination}/{original}/{signature}). Failures
// here must never block the regular work queue — callers log and
// continue, never retry-block.
func Submit(ctx context.Context, api mineapi.API, destination, original, signature string) (mineapi.DonationReceipt, error) {
	return api.Donate(ctx, destination, original, signature)
}
