package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/auditsim/pkg/simulation"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(20)
	valueStyle = lipgloss.NewStyle().Bold(true)
)

func row(label string, value any) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderReport formats the report for a terminal.
func renderReport(r *simulation.Report) string {
	var lines []string
	lines = append(lines,
		headerStyle.Render("Simulation report"),
		row("run", r.RunID),
		row("seed", r.Seed),
		row("pacing", r.Pacing),
		row("simulated", fmt.Sprintf("%s -> %s (%s)", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), r.SimulatedElapsed)),
		row("wall", r.WallElapsed.Round(time.Millisecond)),
		row("agents", fmt.Sprintf("%d finished / %d", r.Finished, r.Agents)),
		row("actions", r.Actions),
		row("succeeded", r.Succeeded),
		row("failed", r.Failed),
		row("retries", r.Retries),
		row("generation errors", r.GenerationErrors),
		row("scenario actions", r.ScenarioActions),
		row("peak in flight", fmt.Sprintf("%d / %d", r.PeakInFlight, r.SinkCapacity)),
	)

	tiers := make(map[string]int64, len(r.TierUsage))
	for t, n := range r.TierUsage {
		tiers[string(t)] = n
	}
	var parts []string
	for _, k := range sortedKeys(tiers) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, tiers[k]))
	}
	lines = append(lines, row("tiers", strings.Join(parts, " ")))

	if len(r.ErrorKinds) > 0 {
		parts = parts[:0]
		for _, k := range sortedKeys(r.ErrorKinds) {
			parts = append(parts, fmt.Sprintf("%s=%d", k, r.ErrorKinds[k]))
		}
		lines = append(lines, row("errors", errorStyle.Render(strings.Join(parts, " "))))
	}

	st := r.Scenarios
	lines = append(lines, row("scenarios", fmt.Sprintf("%d assigned, %d completed, %d aborted", st.Assigned, st.Completed, st.Aborted)))
	for _, name := range sortedKeys(st.ByScenario) {
		s := st.ByScenario[name]
		lines = append(lines, row("  "+name, fmt.Sprintf("%d/%d completed", s.Completed, s.Assigned)))
	}

	if len(r.AbortedAgents) > 0 {
		lines = append(lines, row("aborted agents", errorStyle.Render(strings.Join(r.AbortedAgents, ", "))))
	}

	for _, inv := range r.Invariants {
		mark := okStyle.Render("PASS")
		if !inv.Passed {
			mark = errorStyle.Render("FAIL")
		}
		scope := inv.Scope
		if scope == "" {
			scope = "global"
		}
		lines = append(lines, fmt.Sprintf("%s %s[%s] %s (actual %s)", mark, inv.Metric, scope, inv.Expected, inv.Actual))
	}

	result := okStyle.Render("SUCCESS")
	if !r.Success {
		result = errorStyle.Render("FAILED")
	}
	lines = append(lines, "", statusStyle.Render("Result: ")+result)
	return paneStyle.Render(strings.Join(lines, "\n"))
}
