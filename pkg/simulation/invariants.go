package simulation

import (
	"fmt"
	"math"

	"github.com/rmax-ai/auditsim/pkg/agent"
)

// Invariant metrics.
const (
	MetricSuccessRate            = "success_rate"
	MetricFailureRate            = "failure_rate"
	MetricRetryRate              = "retry_rate"
	MetricScenarioCompletionRate = "scenario_completion_rate"
	MetricGenerationErrorRate    = "generation_error_rate"

	// MetricRecordErrors is not configurable; any record error fails the run.
	MetricRecordErrors = "record_errors"
)

// ValidInvariant reports whether inv names a known metric and condition.
func ValidInvariant(inv Invariant) error {
	switch inv.Metric {
	case MetricSuccessRate, MetricFailureRate, MetricRetryRate,
		MetricScenarioCompletionRate, MetricGenerationErrorRate:
	default:
		return fmt.Errorf("unknown invariant metric %q", inv.Metric)
	}
	switch inv.Condition {
	case ">", ">=", "<", "<=", "==":
	default:
		return fmt.Errorf("unknown invariant condition %q", inv.Condition)
	}
	return nil
}

func evaluateInvariants(r *Report, invariants []Invariant) {
	for _, inv := range invariants {
		expected := fmt.Sprintf("%s %.2f", inv.Condition, inv.Value)

		c, ok := scopeCounters(r, inv.Scope)
		if !ok {
			r.Invariants = append(r.Invariants, InvariantResult{
				Metric: inv.Metric, Scope: inv.Scope, Expected: expected, Actual: "N/A", Passed: false,
			})
			continue
		}

		var actual float64
		switch inv.Metric {
		case MetricScenarioCompletionRate:
			// Scenario completion is tracked per run, not per agent.
			if done := r.Scenarios.Completed + r.Scenarios.Aborted; done > 0 {
				actual = float64(r.Scenarios.Completed) / float64(done)
			}
		case MetricGenerationErrorRate:
			if ticks := c.Actions + c.GenerationErrors; ticks > 0 {
				actual = float64(c.GenerationErrors) / float64(ticks)
			}
		default:
			if c.Actions > 0 {
				switch inv.Metric {
				case MetricSuccessRate:
					actual = float64(c.Actions-c.Failures) / float64(c.Actions)
				case MetricFailureRate:
					actual = float64(c.Failures) / float64(c.Actions)
				case MetricRetryRate:
					actual = float64(c.Retries) / float64(c.Actions)
				}
			}
		}

		var passed bool
		switch inv.Condition {
		case ">":
			passed = actual > inv.Value
		case ">=":
			passed = actual >= inv.Value
		case "<":
			passed = actual < inv.Value
		case "<=":
			passed = actual <= inv.Value
		case "==":
			passed = math.Abs(actual-inv.Value) < 0.0001
		}

		r.Invariants = append(r.Invariants, InvariantResult{
			Metric:   inv.Metric,
			Scope:    inv.Scope,
			Expected: expected,
			Actual:   fmt.Sprintf("%.4f", actual),
			Passed:   passed,
		})
	}
}

// scopeCounters sums counters for "global" (or empty), a role name, or a
// single agent id.
func scopeCounters(r *Report, scope string) (agent.Counters, bool) {
	if scope == "" || scope == "global" {
		return agent.Counters{
			Actions:          r.Actions,
			Failures:         r.Failed,
			Retries:          r.Retries,
			GenerationErrors: r.GenerationErrors,
			ScenarioActions:  r.ScenarioActions,
		}, true
	}
	if ar, ok := r.PerAgent[scope]; ok {
		return ar.Counters, true
	}
	var sum agent.Counters
	found := false
	for _, ar := range r.PerAgent {
		if ar.Role != scope {
			continue
		}
		found = true
		sum.Actions += ar.Counters.Actions
		sum.Failures += ar.Counters.Failures
		sum.Retries += ar.Counters.Retries
		sum.GenerationErrors += ar.Counters.GenerationErrors
		sum.ScenarioActions += ar.Counters.ScenarioActions
	}
	return sum, found
}
