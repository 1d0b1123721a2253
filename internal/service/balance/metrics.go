package balance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripsettle",
			Name:      "settlement_runs_total",
			Help:      "Settlement engine runs by result",
		},
		[]string{"result"},
	)
	settlementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tripsettle",
			Name:      "settlement_duration_seconds",
			Help:      "Duration of settlement engine runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripsettle",
			Name:      "balance_cache_lookups_total",
			Help:      "Balance cache lookups by result",
		},
		[]string{"result"},
	)
)
