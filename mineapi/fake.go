package mineapi

import (
	"context"
	"sync"
)

// Fake is an in-memory API used by the orchestrator/submit/donation test
// suites (scenarios S1-S6 never hit a real Mine API endpoint).
type Fake struct {
	mu sync.Mutex

	NextChallenge    ChallengeResponse
	Submitted        []string // "address/challengeId/nonce"
	duplicates       map[string]bool
	DonationAddress  string
	donationDisabled bool
}

func NewFake() *Fake {
	return &Fake{duplicates: make(map[string]bool)}
}

var _ API = (*Fake)(nil)

func (f *Fake) GetChallenge(_ context.Context) (ChallengeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NextChallenge, nil
}

// MarkDuplicate makes a subsequent Submit for this (address, challengeID,
// nonce) triple return ErrDuplicate, simulating a prior submission the
// fleet already recorded server-side.
func (f *Fake) MarkDuplicate(address, challengeID, nonce string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duplicates[address+"/"+challengeID+"/"+nonce] = true
}

func (f *Fake) Submit(_ context.Context, address, challengeID, nonce string) (SolutionReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := address + "/" + challengeID + "/" + nonce
	if f.duplicates[key] {
		return SolutionReceipt{}, ErrDuplicate
	}
	f.Submitted = append(f.Submitted, key)
	return SolutionReceipt{Address: address, ChallengeID: challengeID, Nonce: nonce}, nil
}

func (f *Fake) GetTandC(_ context.Context, version string) (TandC, error) {
	return TandC{Version: version, Content: "terms", Message: "sign-me-" + version}, nil
}

func (f *Fake) Register(_ context.Context, address, _, _ string) (RegistrationReceipt, error) {
	return RegistrationReceipt{Address: address, Status: "registered"}, nil
}

func (f *Fake) WorkToStarRate(_ context.Context) ([]float64, error) {
	return []float64{1.0, 1.1, 1.2}, nil
}

func (f *Fake) Donate(_ context.Context, destination, _, _ string) (DonationReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.donationDisabled {
		return DonationReceipt{}, ErrDonationWindowClosed
	}
	return DonationReceipt{Destination: destination, Status: "accepted"}, nil
}

// DisableDonations makes Donate return ErrDonationWindowClosed, for
// testing the "donation endpoint fails, regular items proceed" path.
func (f *Fake) DisableDonations() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.donationDisabled = true
}
