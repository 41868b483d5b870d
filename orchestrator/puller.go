package orchestrator

import (
	"context"
	"strconv"
	"time"

	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/mineapi"
)

// Puller implements component G (spec.md §4.4 step 1): on a fetch
// cadence, query the Mine API and upsert the active challenge into the
// challenge ledger keyed by challengeId. "before"/"after" responses and
// errors are logged and never clear the existing cache.
type Puller struct {
	api        mineapi.API
	challenges *ledger.ChallengeStore
	clock      clock.Clock
	log        log.Logger
	region     string
}

func NewPuller(api mineapi.API, challenges *ledger.ChallengeStore, ck clock.Clock, logger log.Logger, region string) *Puller {
	if ck == nil {
		ck = clock.Real
	}
	if logger == nil {
		logger = log.Root
	}
	return &Puller{api: api, challenges: challenges, clock: ck, log: logger, region: region}
}

// Fetch performs one challenge-fetch cycle.
func (p *Puller) Fetch(ctx context.Context) error {
	resp, err := p.api.GetChallenge(ctx)
	if err != nil {
		p.log.Warn("orchestrator: challenge fetch failed, keeping cache", "err", err)
		return nil
	}
	switch resp.Code {
	case mineapi.CodeBefore, mineapi.CodeAfter:
		p.log.Info("orchestrator: no active challenge window", "code", resp.Code)
		return nil
	case mineapi.CodeActive:
		if resp.Challenge == nil {
			p.log.Warn("orchestrator: active response missing challenge body")
			return nil
		}
	default:
		p.log.Warn("orchestrator: unknown challenge code", "code", resp.Code)
		return nil
	}

	qc, err := toQueuedChallenge(*resp.Challenge)
	if err != nil {
		p.log.Warn("orchestrator: malformed challenge, dropping", "err", err)
		return nil
	}

	qc.AvailableAt = p.clock.Now()
	return p.challenges.Replace(ctx, p.region, func(cur ledger.ChallengeCache) []ledger.QueuedChallenge {
		return upsert(cur.Challenges, qc)
	}, p.clock.Now())
}

func upsert(existing []ledger.QueuedChallenge, next ledger.QueuedChallenge) []ledger.QueuedChallenge {
	for i, c := range existing {
		if c.ChallengeID == next.ChallengeID {
			existing[i] = next
			return existing
		}
	}
	return append(existing, next)
}

func toQueuedChallenge(c mineapi.Challenge) (ledger.QueuedChallenge, error) {
	latest, err := time.Parse(time.RFC3339, c.LatestSubmission)
	if err != nil {
		return ledger.QueuedChallenge{}, err
	}
	hour, _ := strconv.Atoi(c.NoPreMineHour)
	_ = hour // numeric string preserved verbatim per spec.md §3; the parse error is discarded, so a non-numeric value is kept as is.
	return ledger.QueuedChallenge{
		ChallengeID:      c.ChallengeID,
		ChallengeNumber:  c.ChallengeNumber,
		Day:              c.Day,
		Difficulty:       c.Difficulty,
		NoPreMine:        c.NoPreMine,
		NoPreMineHour:    c.NoPreMineHour,
		LatestSubmission: latest,
	}, nil
}
