// Package metrics exposes Prometheus instrumentation for every stage
// of an orchestrator call: admission, retries, breaker transitions,
// composite outcomes, and cost.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_calls_total",
			Help: "Total number of orchestrator chat calls",
		},
		[]string{"binding", "status"},
	)

	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_call_duration_seconds",
			Help:    "Chat call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"binding"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_tokens_total",
			Help: "Total number of tokens processed",
		},
		[]string{"binding", "direction"},
	)

	CostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_cost_usd_total",
			Help: "Total cost in USD",
		},
		[]string{"binding"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"binding"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_retries_total",
			Help: "Total number of retry attempts issued",
		},
		[]string{"binding"},
	)

	LimiterWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_limiter_wait_seconds",
			Help:    "Time spent waiting for a rate limit token",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"binding"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_errors_total",
			Help: "Total number of classified call errors",
		},
		[]string{"binding", "kind"},
	)

	FallbackOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_fallback_outcomes_total",
			Help: "Fallback composer outcomes: primary, fallback, or exhausted",
		},
		[]string{"outcome"},
	)

	RaceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_race_outcomes_total",
			Help: "Race composer outcomes: won, canceled, or all_failed",
		},
		[]string{"outcome"},
	)

	MapConcurrencyInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_map_in_flight",
			Help: "Number of in-flight fn calls across active bounded fan-out maps",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_events_dropped_total",
			Help: "Total number of events dropped because an observer was slow",
		},
	)
)

func RecordCall(binding, status string, durationSec float64) {
	CallsTotal.WithLabelValues(binding, status).Inc()
	CallDuration.WithLabelValues(binding).Observe(durationSec)
}

func RecordTokens(binding string, inputTokens, outputTokens int) {
	TokensTotal.WithLabelValues(binding, "input").Add(float64(inputTokens))
	TokensTotal.WithLabelValues(binding, "output").Add(float64(outputTokens))
}

func RecordCost(binding string, costUSD float64) {
	CostTotal.WithLabelValues(binding).Add(costUSD)
}

func RecordRetry(binding string) {
	RetriesTotal.WithLabelValues(binding).Inc()
}

func RecordLimiterWait(binding string, waitSeconds float64) {
	LimiterWaitSeconds.WithLabelValues(binding).Observe(waitSeconds)
}

func RecordError(binding, kind string) {
	ErrorsTotal.WithLabelValues(binding, kind).Inc()
}

func SetCircuitBreakerState(binding string, state int) {
	CircuitBreakerState.WithLabelValues(binding).Set(float64(state))
}

func RecordFallbackOutcome(outcome string) {
	FallbackOutcomes.WithLabelValues(outcome).Inc()
}

func RecordRaceOutcome(outcome string) {
	RaceOutcomes.WithLabelValues(outcome).Inc()
}
