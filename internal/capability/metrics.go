package capability

import "github.com/prometheus/client_golang/prometheus"

var (
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiocap",
			Subsystem: "capability",
			Name:      "transactions_total",
			Help:      "Capability transactions by terminal result",
		},
		[]string{"result"},
	)

	phaseRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiocap",
			Subsystem: "capability",
			Name:      "phase_requests_total",
			Help:      "SET_RADIO_CAPABILITY completions by phase and result",
		},
		[]string{"phase", "result"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiocap",
			Subsystem: "capability",
			Name:      "decisions_total",
			Help:      "Decision passes by outcome",
		},
		[]string{"outcome"},
	)

	transactionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "radiocap",
			Subsystem: "capability",
			Name:      "transaction_active",
			Help:      "1 while a capability transaction is in flight",
		},
	)
)

func init() {
	prometheus.MustRegister(transactionsTotal, phaseRequestsTotal, decisionsTotal, transactionActive)
}

// Transaction results.
const (
	resultCommitted     = "committed"
	resultAborted       = "aborted"
	resultBarrierFailed = "barrier_failed"
)

// Decision outcomes.
const (
	outcomeBusy     = "busy"
	outcomeNotReady = "not_ready"
	outcomeUniform  = "uniform"
	outcomeKeep     = "keep"
	outcomeStart    = "start"
	outcomeNoop     = "noop"
)
