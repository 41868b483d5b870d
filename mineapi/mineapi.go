// Package mineapi implements the external Mine API capability of
// spec.md §6: challenge polling, solution submission, T&C retrieval,
// registration, solve-rate history, and donation.
//
// No example repo in the retrieval pack wraps an HTTP client for an
// external REST API (the teacher and the rest of the pack only ever
// speak JSON-RPC/devp2p internally); net/http plus encoding/json is used
// directly here rather than reaching for an ungrounded HTTP client
// library (see DESIGN.md's stdlib-fallback entry for this package).
package mineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ChallengeCode is the three-way §6 discriminant on GET /challenge.
type ChallengeCode string

const (
	CodeActive ChallengeCode = "active"
	CodeBefore ChallengeCode = "before"
	CodeAfter  ChallengeCode = "after"
)

// Challenge mirrors the wire shape of the "active" challenge payload.
type Challenge struct {
	ChallengeID      string `json:"challenge_id"`
	ChallengeNumber  int    `json:"challenge_number"`
	Day              int    `json:"day"`
	IssuedAt         string `json:"issued_at"`
	Difficulty       string `json:"difficulty"`
	NoPreMine        string `json:"no_pre_mine"`
	LatestSubmission string `json:"latest_submission"`
	NoPreMineHour    string `json:"no_pre_mine_hour"`
}

// ChallengeResponse is the full GET /challenge envelope.
type ChallengeResponse struct {
	Code                 ChallengeCode `json:"code"`
	Challenge            *Challenge    `json:"challenge,omitempty"`
	MiningPeriodEnds     string        `json:"mining_period_ends,omitempty"`
	MaxDay               int           `json:"max_day,omitempty"`
	TotalChallenges      int           `json:"total_challenges,omitempty"`
	CurrentDay           int           `json:"current_day,omitempty"`
	NextChallengeStartsAt string       `json:"next_challenge_starts_at,omitempty"`
}

// SolutionReceipt is returned by POST /solution/....
type SolutionReceipt struct {
	Address       string `json:"address,omitempty"`
	ChallengeID   string `json:"challenge_id,omitempty"`
	Nonce         string `json:"nonce,omitempty"`
	CryptoReceipt string `json:"crypto_receipt,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// TandC is the GET /TandC/{version} response.
type TandC struct {
	Version string `json:"version"`
	Content string `json:"content"`
	Message string `json:"message"`
}

// RegistrationReceipt is returned by POST /register/....
type RegistrationReceipt struct {
	Address string `json:"address"`
	Status  string `json:"status"`
}

// DonationReceipt is returned by POST /donate_to/....
type DonationReceipt struct {
	Destination string `json:"destination"`
	Status      string `json:"status"`
}

// ErrDuplicate is returned by Submit/Donate on HTTP 409.
var ErrDuplicate = fmt.Errorf("mineapi: duplicate submission")

// ErrDonationWindowClosed is returned by Donate on HTTP 403.
var ErrDonationWindowClosed = fmt.Errorf("mineapi: donation window not yet open")

// Client is the capability injected into the orchestrator, submitter,
// donation, and registration components (spec.md §9: "MineAPI" is one of
// the five capability interfaces).
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("mineapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mineapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode/100 == 2 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("mineapi: decode %s: %w", path, err)
		}
	}
	return resp, nil
}

// GetChallenge implements GET /challenge.
func (c *Client) GetChallenge(ctx context.Context) (ChallengeResponse, error) {
	var out ChallengeResponse
	resp, err := c.do(ctx, http.MethodGet, "/challenge", nil, &out)
	if err != nil {
		return ChallengeResponse{}, err
	}
	if resp.StatusCode/100 != 2 {
		return ChallengeResponse{}, fmt.Errorf("mineapi: get challenge: status %d", resp.StatusCode)
	}
	return out, nil
}

// Submit implements POST /solution/{address}/{challenge_id}/{nonce}.
func (c *Client) Submit(ctx context.Context, address, challengeID, nonce string) (SolutionReceipt, error) {
	path := fmt.Sprintf("/solution/%s/%s/%s", address, challengeID, nonce)
	var out SolutionReceipt
	resp, err := c.do(ctx, http.MethodPost, path, []byte{}, &out)
	if err != nil {
		return SolutionReceipt{}, err
	}
	switch {
	case resp.StatusCode == http.StatusConflict:
		return SolutionReceipt{}, ErrDuplicate
	case resp.StatusCode/100 != 2:
		return SolutionReceipt{}, fmt.Errorf("mineapi: submit: status %d", resp.StatusCode)
	}
	return out, nil
}

// GetTandC implements GET /TandC/{version}.
func (c *Client) GetTandC(ctx context.Context, version string) (TandC, error) {
	var out TandC
	resp, err := c.do(ctx, http.MethodGet, "/TandC/"+version, nil, &out)
	if err != nil {
		return TandC{}, err
	}
	if resp.StatusCode/100 != 2 {
		return TandC{}, fmt.Errorf("mineapi: get TandC: status %d", resp.StatusCode)
	}
	return out, nil
}

// Register implements POST /register/{address}/{signature}/{pubkey}.
func (c *Client) Register(ctx context.Context, address, signature, pubkey string) (RegistrationReceipt, error) {
	path := fmt.Sprintf("/register/%s/%s/%s", address, signature, pubkey)
	var out RegistrationReceipt
	resp, err := c.do(ctx, http.MethodPost, path, []byte{}, &out)
	if err != nil {
		return RegistrationReceipt{}, err
	}
	if resp.StatusCode/100 != 2 {
		return RegistrationReceipt{}, fmt.Errorf("mineapi: register: status %d", resp.StatusCode)
	}
	return out, nil
}

// WorkToStarRate implements GET /work_to_star_rate; the last element is
// the current rate (spec.md §6).
func (c *Client) WorkToStarRate(ctx context.Context) ([]float64, error) {
	var out []float64
	resp, err := c.do(ctx, http.MethodGet, "/work_to_star_rate", nil, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("mineapi: work_to_star_rate: status %d", resp.StatusCode)
	}
	return out, nil
}

// Donate implements POST /donate_to/{destination}/{original}/{signature}.
func (c *Client) Donate(ctx context.Context, destination, original, signature string) (DonationReceipt, error) {
	path := fmt.Sprintf("/donate_to/%s/%s/%s", destination, original, signature)
	var out DonationReceipt
	resp, err := c.do(ctx, http.MethodPost, path, []byte{}, &out)
	if err != nil {
		return DonationReceipt{}, err
	}
	switch resp.StatusCode {
	case http.StatusForbidden:
		return DonationReceipt{}, ErrDonationWindowClosed
	case http.StatusConflict:
		return DonationReceipt{}, ErrDuplicate
	}
	if resp.StatusCode/100 != 2 {
		return DonationReceipt{}, fmt.Errorf("mineapi: donate: status %d", resp.StatusCode)
	}
	return out, nil
}
