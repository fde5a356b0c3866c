// Package metrics exposes Prometheus instrumentation for the insider scan
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WalletsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insiderscan_wallets_scanned_total",
		Help: "Candidate wallets discovered by the scanner.",
	})

	WalletsQualified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insiderscan_wallets_qualified_total",
		Help: "Wallets that passed the full-history trade-count filter.",
	})

	WalletsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insiderscan_wallets_skipped_total",
		Help: "Wallets excluded as too active for insider-like behavior.",
	})

	WalletErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insiderscan_wallet_errors_total",
		Help: "Per-wallet processing failures.",
	})

	TradesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insiderscan_trades_recorded_total",
		Help: "New trade rows persisted.",
	})

	TradesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insiderscan_trades_resolved_total",
		Help: "Trades transitioned to resolved.",
	})

	BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insiderscan_badges_awarded_total",
		Help: "New badges awarded, by badge type.",
	}, []string{"badge_type"})

	FeedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insiderscan_feed_requests_total",
		Help: "HTTP requests issued to the Polymarket APIs.",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "insiderscan_run_duration_seconds",
		Help:    "Wall-clock duration of pipeline runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	RunsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insiderscan_runs_timed_out_total",
		Help: "Runs that stopped early on budget exhaustion.",
	})
)

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
