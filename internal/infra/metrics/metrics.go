package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the economy-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	LedgerTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Committed ledger transactions by direction.",
		},
		[]string{"direction"},
	)

	GateRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: "gate",
			Name:      "rejections_total",
			Help:      "Engagement events rejected before earning, by reason.",
		},
		[]string{"reason"},
	)

	Claims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: "streak",
			Name:      "claims_total",
			Help:      "Daily claim attempts by outcome.",
		},
		[]string{"outcome"},
	)

	SweepMarked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: "streak",
			Name:      "sweep_marked_total",
			Help:      "Streak rows advisory-marked broken by the sweep.",
		},
	)

	Grants = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: "rewards",
			Name:      "grants_total",
			Help:      "Reward grants committed to the ledger.",
		},
	)

	GrantsClamped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: "rewards",
			Name:      "grants_clamped_total",
			Help:      "Grants whose amount was reduced by the per-action cap.",
		},
	)

	RulesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: "rewards",
			Name:      "rules_skipped_total",
			Help:      "Active rules skipped because their condition tree failed validation.",
		},
	)
)

func init() {
	Registry.MustRegister(
		LedgerTransactions,
		GateRejections,
		Claims,
		SweepMarked,
		Grants,
		GrantsClamped,
		RulesSkipped,
	)
}

// Handler serves the registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
