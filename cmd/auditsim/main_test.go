package main

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/simulation"
)

func TestRenderReport(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	r := &simulation.Report{
		RunID:         "run-1",
		Seed:          42,
		Pacing:        simulation.PacingVirtual,
		Start:         start,
		End:           start.Add(time.Hour),
		Agents:        3,
		Finished:      2,
		Actions:       10,
		Succeeded:     9,
		Failed:        1,
		TierUsage:     map[action.Tier]int64{action.TierContext: 10},
		ErrorKinds:    map[string]int64{"timeout": 1},
		AbortedAgents: []string{"hr-002"},
		Invariants: []simulation.InvariantResult{
			{Metric: simulation.MetricSuccessRate, Expected: ">= 0.95", Actual: "0.9000"},
		},
	}

	out := renderReport(r)
	for _, want := range []string{"run-1", "hr-002", "timeout=1", "FAIL", "success_rate[global]", "FAILED"} {
		assert.Contains(t, out, want)
	}

	r.AbortedAgents = nil
	r.Invariants = nil
	r.Success = true
	assert.Contains(t, renderReport(r), "SUCCESS")
}

func TestReportParams(t *testing.T) {
	cmd := &cobra.Command{}
	f := cmd.Flags()
	for _, name := range []string{"agent", "scenario", "role", "outcome", "bucket", "from", "to"} {
		f.String(name, "", "")
	}
	require.NoError(t, f.Set("agent", "hr-001"))
	require.NoError(t, f.Set("bucket", "day"))
	require.NoError(t, f.Set("from", "2024-03-04T09:00:00Z"))

	params, err := reportParams(cmd)
	require.NoError(t, err)
	assert.Equal(t, "hr-001", params.Filters["agent_id"])
	assert.Equal(t, "day", params.Filters["bucket"])
	assert.NotContains(t, params.Filters, "role")
	assert.Equal(t, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), params.Start)
	assert.True(t, params.End.IsZero())

	require.NoError(t, f.Set("to", "yesterday"))
	_, err = reportParams(cmd)
	assert.Error(t, err)
}

type fixedProgress simulation.Progress

func (f fixedProgress) Progress() simulation.Progress { return simulation.Progress(f) }

func TestWatchModel(t *testing.T) {
	m := newWatchModel(fixedProgress{Agents: 4, Running: 4}, "test")

	next, cmd := m.Update(tickMsg(time.Now()))
	wm := next.(watchModel)
	assert.False(t, wm.done)
	assert.NotNil(t, cmd)
	assert.Contains(t, wm.View(), "4 running / 4")

	m = newWatchModel(fixedProgress{Agents: 4, Done: true}, "test")
	next, _ = m.Update(tickMsg(time.Now()))
	assert.True(t, next.(watchModel).done)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, next.(watchModel).aborted)
}
