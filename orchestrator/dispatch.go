package orchestrator

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"

	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/miner"
)

// Outcome is the result of dispatching one WorkItem.
type Outcome struct {
	Item   WorkItem
	Result miner.Result
	Err    error
}

// Pool is the bounded dispatch (component I). No ready-made
// bounded-worker-pool module from the retrieval pack is present (the
// teacher's own fork pulls in a workerpool dependency for exactly this
// need, but that module isn't in this pack's retrieval), so the bound is
// a small hand-rolled buffered-channel semaphore — documented in
// DESIGN.md as a stdlib fallback. The in-progress tracking set reuses
// github.com/deckarep/golang-set, the exact structure the teacher's
// miner/worker.go uses for its ancestors/family/uncles sets.
type Pool struct {
	width     int
	runner    miner.Runner
	graceWait time.Duration
	clock     clock.Clock
	log       log.Logger

	mu         sync.Mutex
	inProgress mapset.Set
	sem        chan struct{}
}

func NewPool(width int, runner miner.Runner, graceWait time.Duration, ck clock.Clock, logger log.Logger) *Pool {
	if width <= 0 {
		width = 1
	}
	if ck == nil {
		ck = clock.Real
	}
	if logger == nil {
		logger = log.Root
	}
	return &Pool{
		width:      width,
		runner:     runner,
		graceWait:  graceWait,
		clock:      ck,
		log:        logger,
		inProgress: mapset.NewSet(),
		sem:        make(chan struct{}, width),
	}
}

// InProgress reports whether key is currently being mined, for the
// queue builder to skip items already in flight.
func (p *Pool) InProgress(key string) bool {
	return p.inProgress.Contains(key)
}

// tryAcquire marks item in-progress if it isn't already, returning false
// if another subprocess already owns it (spec.md §5: "the in-progress
// set prevents two subprocesses from mining the same WorkItem
// simultaneously").
func (p *Pool) tryAcquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inProgress.Contains(key) {
		return false
	}
	p.inProgress.Add(key)
	return true
}

func (p *Pool) release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inProgress.Remove(key)
}

// Dispatch spawns the miner binary for item if a slot is free and the
// item isn't already in-flight, sending the Outcome on results when
// done. It does not block the caller beyond acquiring a semaphore slot
// synchronously up front, so the caller's Tick loop can move on to the
// next item immediately once dispatched (spec.md §4.4 step 4).
func (p *Pool) Dispatch(ctx context.Context, item WorkItem, results chan<- Outcome) bool {
	key := item.Key()
	if !p.tryAcquire(key) {
		return false
	}
	select {
	case p.sem <- struct{}{}:
	default:
		p.release(key)
		return false // pool saturated: item remains available for next Tick.
	}

	go func() {
		defer func() { <-p.sem }()
		defer p.release(key)

		params := miner.Params{
			Address:          item.Address,
			ChallengeID:      item.Challenge.ChallengeID,
			Difficulty:       item.Challenge.Difficulty,
			NoPreMine:        item.Challenge.NoPreMine,
			LatestSubmission: item.Challenge.LatestSubmission.Format(time.RFC3339),
			NoPreMineHour:    item.Challenge.NoPreMineHour,
		}
		res, err := p.runner.Run(ctx, params, p.graceWait)
		results <- Outcome{Item: item, Result: res, Err: err}
	}()
	return true
}

// Abort removes key from in-progress tracking without waiting for the
// subprocess; used by the expiry scanner once it has already signalled
// cancellation through the item's context (spec.md's expiry-abort path
// releases the WorkItem as soon as the scanner fires, independent of how
// quickly the subprocess actually exits).
func (p *Pool) Abort(key string) {
	p.release(key)
}
