package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PoolEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_keeper_pool_evaluations_total",
			Help: "Total number of per-pool keeper evaluations",
		},
		[]string{"pool", "status"},
	)

	PoolEvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pool_keeper_pool_evaluation_duration_seconds",
			Help:    "Duration of per-pool keeper evaluations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"pool"},
	)

	KicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_keeper_kicks_total",
			Help: "Kick attempts by outcome",
		},
		[]string{"pool", "outcome"},
	)

	TakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_keeper_arb_takes_total",
			Help: "ArbTake attempts by outcome",
		},
		[]string{"pool", "outcome"},
	)

	LPCollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_keeper_lp_collections_total",
			Help: "LP reward redemptions by outcome",
		},
		[]string{"pool", "outcome"},
	)

	DisposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_keeper_reward_disposals_total",
			Help: "Reward disposals by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	PendingCredits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pool_keeper_reward_pending_credits",
			Help: "Number of non-empty reward credit entries",
		},
	)

	NonceStallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pool_keeper_tx_nonce_stalls_total",
			Help: "Transactions whose nonce advance was not observed within the wait bound",
		},
	)

	TxQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pool_keeper_tx_queue_depth",
			Help: "Mutating calls waiting for the signer",
		},
	)
)
