// Package metrics holds the prometheus collectors of the reconciliation
// engine. Collectors are package-level; Register attaches them to a
// registry once per process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "passes_total",
		Help:      "Reconciliation passes by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "playerwatch",
		Name:      "pass_duration_seconds",
		Help:      "Reconciliation pass duration in seconds, settle delays included.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	})

	AdapterCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "adapter_calls_total",
		Help:      "Widget lifecycle calls by operation and result.",
	}, []string{"op", "result"})

	BatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "mutation_batches_total",
		Help:      "Mutation batches received, split by whether a target was extracted.",
	}, []string{"relevant"})

	FailsafeTriggersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "failsafe_triggers_total",
		Help:      "Failsafe ticks that found stored flags stale.",
	})

	RedirectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "redirects_total",
		Help:      "Play-driven redirects by outcome.",
	}, []string{"outcome"})

	WidgetLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "playerwatch",
		Name:      "widget_loaded",
		Help:      "Whether the widget is currently loaded (1) or not (0).",
	})

	ProgressEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "progress_events_total",
		Help:      "Activity progress events by source.",
	}, []string{"source"})
)

// Register attaches every collector to reg. It panics on double
// registration, like prometheus.MustRegister.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		PassesTotal,
		PassDuration,
		AdapterCallsTotal,
		BatchesTotal,
		FailsafeTriggersTotal,
		RedirectsTotal,
		WidgetLoaded,
		ProgressEventsTotal,
	)
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Bool maps a flag to a "true"/"false" label value.
func Bool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
