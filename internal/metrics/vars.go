package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	ScanCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_scan_cycles_total",
		Help: "Completed scan cycles",
	})

	QuoteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_quote_failures_total",
		Help: "Quote legs skipped, by venue and reason",
	}, []string{"venue", "reason"})

	Opportunities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_opportunities_total",
		Help: "Opportunities clearing the profit threshold, by direction",
	}, []string{"direction"})

	SimulationRejects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_simulation_rejects_total",
		Help: "Settlement simulations that failed the safety gate",
	})

	Submissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_submissions_total",
		Help: "Settlement transactions submitted",
	})

	Reverts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_reverts_total",
		Help: "Settlement transactions included but reverted",
	})

	BusyDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_busy_drops_total",
		Help: "Opportunities dropped because an attempt was in flight",
	})

	LastProfit = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_last_profit",
		Help: "Last computed round-trip profit in quote-asset units, by direction",
	}, []string{"direction"})

	QuoteLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_quote_latency_seconds",
		Help:    "Time to evaluate one direction (both quote legs)",
		Buckets: prometheus.DefBuckets,
	})
)

// NewRegistry builds a private registry holding only this process's
// collectors, keeping the /metrics surface free of third-party noise.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ScanCycles,
		QuoteFailures,
		Opportunities,
		SimulationRejects,
		Submissions,
		Reverts,
		BusyDrops,
		LastProfit,
		QuoteLatency,
	)
	return reg
}
