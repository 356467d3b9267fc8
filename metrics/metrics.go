package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scanner
var (
	IntentsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "intents_emitted_total",
		Help:      "Liquidation intents handed to the execution engine.",
	})

	IntentsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "intents_discarded_total",
		Help:      "Candidate plans discarded before execution.",
	}, []string{"reason"})

	ScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "scan_errors_total",
		Help:      "Failed scan ticks (index or price feed read errors).",
	})

	PoolsHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "liquidator",
		Name:      "pools_halted",
		Help:      "Pools halted after an invariant violation, pending acknowledgement.",
	})
)

// execution
var (
	AttemptsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "attempts_broadcast_total",
		Help:      "Transaction attempts that reached the mempool.",
	})

	LiquidationsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "liquidations_confirmed_total",
		Help:      "Liquidation transactions confirmed on chain.",
	})

	AttemptsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "attempts_failed_total",
		Help:      "Intents that finished without confirmation.",
	}, []string{"reason"})

	FeeEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "fee_escalations_total",
		Help:      "Fee-bumped resubmissions under an existing sequence number.",
	})
)
