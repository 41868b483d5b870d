package mineapi

import "context"

// API is the capability interface spec.md §9 calls for injecting the
// Mine API at orchestrator construction instead of importing a
// concrete client. *Client satisfies it; fake.go provides an in-memory
// test double.
type API interface {
	GetChallenge(ctx context.Context) (ChallengeResponse, error)
	Submit(ctx context.Context, address, challengeID, nonce string) (SolutionReceipt, error)
	GetTandC(ctx context.Context, version string) (TandC, error)
	Register(ctx context.Context, address, signature, pubkey string) (RegistrationReceipt, error)
	WorkToStarRate(ctx context.Context) ([]float64, error)
	Donate(ctx context.Context, destination, original, signature string) (DonationReceipt, error)
}

var _ API = (*Client)(nil)
