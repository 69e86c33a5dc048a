package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	OutcomeNotified = "notified"
	OutcomeSilent   = "silent"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

var (
	// Check runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratealert_runs_total",
			Help: "Total number of check runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratealert_run_duration_seconds",
			Help:    "Wall time of a check run",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		},
	)

	// Collaborator failures
	FetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratealert_fetch_failures_total",
			Help: "Total number of failed market data fetches",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratealert_notifications_total",
			Help: "Total number of notification attempts",
		},
		[]string{"direction", "status"}, // status: sent, failed
	)

	// Last observation
	BorrowAPY = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratealert_borrow_apy",
			Help: "Last observed borrow APY as a fraction",
		},
		[]string{"market", "chain_id"},
	)

	Utilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratealert_utilization",
			Help: "Last observed utilization as a fraction",
		},
		[]string{"market", "chain_id"},
	)

	Threshold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratealert_threshold",
			Help: "Configured borrow APY threshold as a fraction",
		},
		[]string{"market", "chain_id"},
	)

	Above = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratealert_above_threshold",
			Help: "1 when the last observed borrow APY was at or above the threshold",
		},
		[]string{"market", "chain_id"},
	)
)
