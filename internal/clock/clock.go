// Package clock provides the injectable time source spec.md §9 calls for
// ("Clock injection is required to test S5"). The real implementation
// reads the standard time package; aristanetworks/goarista's monotonic
// clock helper backs only MonotonicUptime.
package clock

import (
	"time"

	"github.com/aristanetworks/goarista/monotime"
)

// Clock abstracts wall-clock reads and sleeps so tests can advance time
// deterministically (expiry-abort scenario S5 depends on this).
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker so fakes can fire ticks under test control.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type real struct{}

// Real is the production Clock, backed by time.Now, time.After and
// time.NewTicker.
var Real Clock = real{}

var bootMonotonic = monotime.Now()
var bootWall = time.Now()

func (real) Now() time.Time { return time.Now() }

func (real) Since(t time.Time) time.Duration { return time.Since(t) }

func (real) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// MonotonicUptime returns elapsed process time using the monotonic clock
// rather than wall time, immune to NTP step adjustments. The reclaimer's
// staleness math does not use it; it compares wall-clock heartbeat times.
func MonotonicUptime() time.Duration {
	return time.Duration(monotime.Now() - bootMonotonic)
}

// Fake is a deterministic Clock for tests: Now() returns a settable
// instant and tickers/afters fire only when Advance is called.
type Fake struct {
	now     time.Time
	tickers []*fakeTicker
	afters  []*fakeAfter
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) Since(t time.Time) time.Duration { return f.now.Sub(t) }

type fakeAfter struct {
	at time.Time
	ch chan time.Time
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	a := &fakeAfter{at: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.afters = append(f.afters, a)
	return a.ch
}

type fakeTicker struct {
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }

func (f *Fake) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{interval: d, next: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the fake clock forward by d, firing any tickers/afters
// whose deadline has passed (at most once per call, matching how
// time.Ticker coalesces missed ticks under a slow consumer).
func (f *Fake) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	remaining := f.afters[:0]
	for _, a := range f.afters {
		if !f.now.Before(a.at) {
			select {
			case a.ch <- f.now:
			default:
			}
		} else {
			remaining = append(remaining, a)
		}
	}
	f.afters = remaining
	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		for !f.now.Before(t.next) {
			select {
			case t.ch <- f.now:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
}
