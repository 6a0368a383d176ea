package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh pipeline

	SnapshotRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_snapshot_refresh_total",
			Help: "Total number of snapshot refresh attempts",
		},
		[]string{"status"},
	)

	SnapshotRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocation_snapshot_refresh_duration_seconds",
		Help:    "Duration of snapshot refreshes (load, aggregate, build trees)",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	SnapshotLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_snapshot_last_success_timestamp_seconds",
		Help: "Unix time of the last successful snapshot refresh",
	})

	SnapshotRounds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_snapshot_rounds",
		Help: "Number of rounds in the current snapshot",
	})

	SnapshotLatestRound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_snapshot_latest_round",
		Help: "Highest round number in the current snapshot",
	})

	RoundLeaves = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "allocation_round_leaves",
			Help: "Number of allocations committed in a round's tree",
		},
		[]string{"round"},
	)

	AggregationAbsorbed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_aggregation_absorbed_total",
			Help: "Raw entries accepted with substitution or skipped during aggregation",
		},
		[]string{"reason"},
	)

	RootDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocation_root_drift_total",
		Help: "Rounds whose rebuilt root differs from the recorded one",
	})

	// Query API

	QueryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_query_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allocation_query_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocation_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

// Aggregation reasons
const (
	ReasonMalformedAmount = "malformed_amount"
	ReasonSkippedAddress  = "skipped_address"
	ReasonOverflow        = "overflow"
)
