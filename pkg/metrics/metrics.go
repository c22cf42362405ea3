// Package metrics holds the Prometheus collectors exported by auditsim.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActionsTotal counts completed actions by role, operation and outcome.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsim_actions_total",
			Help: "Total number of actions submitted to the sink",
		},
		[]string{"role", "operation", "outcome"},
	)

	// GenerationTierTotal counts which tier of the generator chain produced an action
	GenerationTierTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsim_generation_tier_total",
			Help: "Actions produced per generation tier",
		},
		[]string{"tier"},
	)

	// GenerationTierFailuresTotal counts tiers that failed and handed off to the next one
	GenerationTierFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsim_generation_tier_failures_total",
			Help: "Generation tiers that could not resolve an action",
		},
		[]string{"tier"},
	)

	// GenerationErrorsTotal counts ticks skipped because generation failed outright
	GenerationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsim_generation_errors_total",
			Help: "Ticks skipped after an unrecoverable generation fault",
		},
	)

	// SinkInFlight tracks the number of sink submissions currently holding capacity
	SinkInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditsim_sink_inflight",
			Help: "Sink submissions currently in flight",
		},
	)

	// SinkRetriesTotal counts retried sink attempts by error kind
	SinkRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsim_sink_retries_total",
			Help: "Sink attempts retried after a transport error",
		},
		[]string{"error_kind"},
	)

	// ScenarioTransitionsTotal counts scenario instances reaching a status
	ScenarioTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsim_scenario_transitions_total",
			Help: "Scenario instance status transitions",
		},
		[]string{"scenario", "status"},
	)

	// RecordErrorsTotal counts telemetry records a recorder failed to persist
	RecordErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsim_record_errors_total",
			Help: "Telemetry records that failed to persist",
		},
		[]string{"recorder"},
	)

	// VirtualTimeSeconds tracks the simulated unix time of the shared clock
	VirtualTimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditsim_virtual_time_seconds",
			Help: "Current simulated time as unix seconds",
		},
	)

	// AgentsRunning tracks live agent runtimes
	AgentsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditsim_agents_running",
			Help: "Agent runtimes currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(GenerationTierTotal)
	prometheus.MustRegister(GenerationTierFailuresTotal)
	prometheus.MustRegister(GenerationErrorsTotal)
	prometheus.MustRegister(SinkInFlight)
	prometheus.MustRegister(SinkRetriesTotal)
	prometheus.MustRegister(ScenarioTransitionsTotal)
	prometheus.MustRegister(RecordErrorsTotal)
	prometheus.MustRegister(VirtualTimeSeconds)
	prometheus.MustRegister(AgentsRunning)
}
