package orchestrator

import (
	"context"
	"sync"
	"time"

	"berith-chain/minefleet/donation"
	"berith-chain/minefleet/internal/clock"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/ipc"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/submit"
)

// Config controls the engine's cadences (spec.md §4.4's three
// independent schedules) and the donation cadence (§4.7).
type Config struct {
	WorkCheckInterval      time.Duration
	ChallengeFetchInterval time.Duration
	ExpiryScanInterval     time.Duration
	DonationEvery          int
	GraceWait              time.Duration
}

// trackedDispatch is one in-flight subprocess's cancellation handle plus
// the instant its challenge expires, the map the expiry scanner walks
// every tick (spec.md §4.4: "a background timer scans the map
// workerId -> {challengeId, expiresAt} every 10s").
type trackedDispatch struct {
	cancel    context.CancelFunc
	expiresAt time.Time
}

// Engine ties the puller (G), queue builder (H), dispatch pool (I), and
// expiry scanner together into the worker's per-Tick event loop (spec.md
// §4.4, §9: "goroutine-per-subsystem with channels for fetch/work/
// submit/abort").
type Engine struct {
	puller       *Puller
	challenges   *ledger.ChallengeStore
	solutions    *ledger.SolutionsStore
	pool         *Pool
	interleaver  *donation.Interleaver
	donationProv donation.Provider
	submitter    *submit.Submitter
	workerID     string
	clock        clock.Clock
	log          log.Logger
	config       Config

	mu            sync.Mutex
	tracked       map[string]trackedDispatch
	lastFetch     time.Time
	lastAddresses []string

	results chan Outcome
}

func NewEngine(
	puller *Puller,
	challenges *ledger.ChallengeStore,
	solutions *ledger.SolutionsStore,
	pool *Pool,
	interleaver *donation.Interleaver,
	donationProv donation.Provider,
	submitter *submit.Submitter,
	workerID string,
	ck clock.Clock,
	logger log.Logger,
	cfg Config,
) *Engine {
	if ck == nil {
		ck = clock.Real
	}
	if logger == nil {
		logger = log.Root
	}
	return &Engine{
		puller: puller, challenges: challenges, solutions: solutions, pool: pool,
		interleaver: interleaver, donationProv: donationProv,
		submitter: submitter, workerID: workerID,
		clock: ck, log: logger, config: cfg,
		tracked: make(map[string]trackedDispatch),
		results: make(chan Outcome, 64),
	}
}

// Tick implements spec.md §4.4's Tick steps 1-4 for one cycle.
func (e *Engine) Tick(ctx context.Context, addresses []string) error {
	e.mu.Lock()
	e.lastAddresses = addresses
	e.mu.Unlock()

	now := e.clock.Now()
	if now.Sub(e.lastFetch) >= e.config.ChallengeFetchInterval {
		if err := e.puller.Fetch(ctx); err != nil {
			e.log.Warn("orchestrator: fetch failed", "err", err)
		}
		e.lastFetch = now
	}

	cache, err := e.challenges.Read(ctx)
	if err != nil {
		return err
	}
	valid := DropExpired(cache.Challenges, now)

	items, err := BuildQueue(ctx, e.solutions, addresses, valid)
	if err != nil {
		return err
	}
	items = MaybeInsertDonation(ctx, e.interleaver, e.donationProv, valid, items)

	for _, item := range items {
		if e.pool.InProgress(item.Key()) {
			continue
		}
		itemCtx, cancel := context.WithCancel(ctx)
		e.mu.Lock()
		e.tracked[item.Key()] = trackedDispatch{cancel: cancel, expiresAt: item.Challenge.LatestSubmission}
		e.mu.Unlock()

		if !e.pool.Dispatch(itemCtx, item, e.results) {
			cancel()
			e.mu.Lock()
			delete(e.tracked, item.Key())
			e.mu.Unlock()
		}
	}
	return nil
}

// ScanExpired implements spec.md §4.4's expiry-abort scanner: any
// tracked dispatch whose challenge has expired is cancelled (SIGTERM via
// miner.Runner's context honoring), its tracking entry removed, and the
// WorkItem released so it's never submitted (spec.md §8 scenario S5).
func (e *Engine) ScanExpired(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, td := range e.tracked {
		if now.After(td.expiresAt) {
			td.cancel()
			e.pool.Abort(key)
			delete(e.tracked, key)
		}
	}
}

// handleOutcome implements spec.md §4.5: a finished subprocess run either
// yields a nonce (submitted via the Submitter, component J) or a failure
// (logged only: it is not recorded in the stats ledger, and no
// submission is attempted). Either way the
// item's tracking entry is released so the next Tick can requeue it if
// it remains unexpired and wasn't solved.
func (e *Engine) handleOutcome(ctx context.Context, outcome Outcome) {
	key := outcome.Item.Key()
	e.mu.Lock()
	if td, ok := e.tracked[key]; ok {
		td.cancel()
		delete(e.tracked, key)
	}
	e.mu.Unlock()

	if outcome.Err != nil {
		e.log.Warn("orchestrator: miner run failed", "key", key, "err", outcome.Err)
		return
	}
	if !outcome.Result.Success {
		return
	}
	if err := e.submitter.Submit(ctx, outcome.Item.Address, outcome.Item.Challenge.ChallengeID, outcome.Result.Nonce, e.workerID, outcome.Item.IsDonation); err != nil {
		e.log.Warn("orchestrator: submit failed", "key", key, "err", err)
	}
}

var _ ipc.StatusProvider = (*Engine)(nil)

// Status implements ipc.StatusProvider, letting the operator CLI query a
// running worker's live queue depth and in-flight assignments over the
// local control socket (spec.md §4.9) without touching the object store.
func (e *Engine) Status() ipc.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	inProgress := make([]string, 0, len(e.tracked))
	for key := range e.tracked {
		inProgress = append(inProgress, key)
	}
	return ipc.Status{
		WorkerID:     e.workerID,
		Region:       e.puller.region,
		Addresses:    append([]string(nil), e.lastAddresses...),
		PendingQueue: len(e.tracked),
		InProgress:   inProgress,
	}
}

// Run drives the cadences of spec.md §4.4 until ctx is cancelled: Tick on
// WorkCheckInterval (Tick itself gates the challenge fetch), and the
// expiry scanner on ExpiryScanInterval. addressesFn supplies the worker's current address
// slice (stable after allocation, but read indirectly to avoid pinning a
// stale snapshot across the worker's lifetime).
func (e *Engine) Run(ctx context.Context, addressesFn func() []string) {
	workTicker := e.clock.NewTicker(e.config.WorkCheckInterval)
	expiryTicker := e.clock.NewTicker(e.config.ExpiryScanInterval)
	defer workTicker.Stop()
	defer expiryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-workTicker.C():
			if err := e.Tick(ctx, addressesFn()); err != nil {
				e.log.Warn("orchestrator: tick failed", "err", err)
			}
		case <-expiryTicker.C():
			e.ScanExpired(e.clock.Now())
		case outcome := <-e.results:
			e.handleOutcome(ctx, outcome)
		}
	}
}
