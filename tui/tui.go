// Package tui implements the fleet dashboard of spec.md §4.9: a
// termui-driven terminal UI polling the stats ledger for the donation
// share of total solutions, recent solutions, and recent errors. Ambient operator tooling, not on
// the mining hot path.
package tui

import (
	"context"
	"fmt"
	"time"

	ui "github.com/gizak/termui"

	"berith-chain/minefleet/ledger"
)

// Dashboard renders fleet-wide stats in a terminal, refreshed on a
// polling interval until the operator quits (q or Ctrl-C).
type Dashboard struct {
	store    *ledger.StatsStore
	interval time.Duration

	totals   *ui.Gauge
	solved   *ui.List
	errored  *ui.List
}

// New builds a Dashboard polling store every interval.
func New(store *ledger.StatsStore, interval time.Duration) *Dashboard {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dashboard{store: store, interval: interval}
}

// Run initializes the terminal, lays out the widgets, and blocks until
// ctx is cancelled or the operator quits.
func (d *Dashboard) Run(ctx context.Context) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("tui: init: %w", err)
	}
	defer ui.Close()

	d.totals = ui.NewGauge()
	d.totals.BorderLabel = "Donation share of total solutions"
	d.totals.Height = 3
	d.totals.BarColor = ui.ColorGreen

	d.solved = ui.NewList()
	d.solved.BorderLabel = "Recent solutions"
	d.solved.Height = 12

	d.errored = ui.NewList()
	d.errored.BorderLabel = "Recent errors"
	d.errored.Height = 12

	ui.Body = ui.NewGrid()
	ui.Body.AddRows(
		ui.NewRow(ui.NewCol(12, 0, d.totals)),
		ui.NewRow(ui.NewCol(6, 0, d.solved), ui.NewCol(6, 0, d.errored)),
	)
	ui.Body.Align()

	d.refresh(ctx)
	ui.Render(ui.Body)

	ui.Handle("/sys/kbd/q", func(ui.Event) { ui.StopLoop() })
	ui.Handle("/sys/kbd/C-c", func(ui.Event) { ui.StopLoop() })
	ui.Handle("/timer/1s", func(e ui.Event) {
		t, ok := e.Data.(ui.EvtTimer)
		if !ok || time.Duration(t.Count)*time.Second%d.interval != 0 {
			return
		}
		d.refresh(ctx)
		ui.Body.Align()
		ui.Render(ui.Body)
	})

	ui.Loop()
	return ctx.Err()
}

func (d *Dashboard) refresh(ctx context.Context) {
	snap, err := d.store.Snapshot(ctx)
	if err != nil {
		d.errored.Items = []string{fmt.Sprintf("stats unavailable: %v", err)}
		return
	}

	d.totals.Percent = donationPercent(snap)
	d.solved.Items = formatSolutions(snap.RecentSolutions)
	d.errored.Items = formatErrors(snap.RecentErrors)
}

// donationPercent is the donation share of total solutions, as an
// integer 0-100 for the gauge widget.
func donationPercent(snap ledger.Stats) int {
	if snap.TotalSolutions == 0 {
		return 0
	}
	return snap.DonationSolutions * 100 / snap.TotalSolutions
}

func formatSolutions(solutions []ledger.RecentSolution) []string {
	out := make([]string, 0, len(solutions))
	for _, s := range solutions {
		out = append(out, fmt.Sprintf("%s  %s  %s", s.SubmittedAt.Format(time.Kitchen), s.Address, s.ChallengeID))
	}
	return out
}

func formatErrors(errs []ledger.RecentError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, fmt.Sprintf("%s  %s  %s", e.OccurredAt.Format(time.Kitchen), e.Address, e.Message))
	}
	return out
}
