// Package stats exposes the fleet's ledger.Stats as Prometheus gauges,
// the teacher's require block carries prometheus/prometheus +
// prometheus/tsdb (a server/storage-engine shaped pair, not fit for a
// worker-side client) so this module uses prometheus/client_golang
// instead — the ecosystem's client-side registry/collector library, the
// real substitution documented in DESIGN.md.
package stats

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"berith-chain/minefleet/ledger"
)

// Metrics is the Prometheus collector wired to a ledger.StatsStore
// snapshot, polled on an interval and exposed via Handler() on the
// worker's /metrics endpoint (spec.md §2's ambient deployment shape).
type Metrics struct {
	registry *prometheus.Registry

	totalSolutions    prometheus.Gauge
	donationSolutions prometheus.Gauge
	totalErrors       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		totalSolutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minefleet", Name: "total_solutions", Help: "Cumulative accepted solutions across the fleet.",
		}),
		donationSolutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minefleet", Name: "donation_solutions", Help: "Cumulative donation solutions across the fleet.",
		}),
		totalErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minefleet", Name: "total_errors", Help: "Cumulative submission errors across the fleet.",
		}),
	}
	m.registry.MustRegister(m.totalSolutions, m.donationSolutions, m.totalErrors)
	return m
}

// Handler returns the HTTP handler serving this registry's metrics
// (mounted at /metrics by the worker/controller binaries).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Update refreshes the gauges from a stats snapshot.
func (m *Metrics) Update(st ledger.Stats) {
	m.totalSolutions.Set(float64(st.TotalSolutions))
	m.donationSolutions.Set(float64(st.DonationSolutions))
	m.totalErrors.Set(float64(st.TotalErrors))
}

// PollLoop polls store every interval and updates the gauges until ctx
// is cancelled, so /metrics always reflects a recent ledger snapshot.
func (m *Metrics) PollLoop(ctx context.Context, store *ledger.StatsStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := store.Snapshot(ctx)
			if err != nil {
				continue
			}
			m.Update(snap)
		}
	}
}
