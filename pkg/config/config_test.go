package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/simerr"
	"github.com/rmax-ai/auditsim/pkg/simulation"
	"github.com/rmax-ai/auditsim/pkg/sink"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const yamlConfig = `
population_size: 30
speed_multiplier: 60
simulated_duration: 2h
start_time: "2024-03-04T08:00:00Z"
rng_seed: 11
scenario_fraction: 0.2
scenarios: [slow_drip_export]
role_mix:
  analyst: 2
  support: 1
business_hours:
  days: [mon, tue]
  start_time: "08:00"
  end_time: "16:00"
holiday_calendar:
  "2024-03-05": Founders Day
backoff:
  base: 10ms
  max: 1s
sink:
  kind: sqlite
  read_only_roles: [support]
invariants:
  - metric: success_rate
    condition: ">="
    value: 0.5
favourite_colour: teal
`

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(write(t, "sim.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.PopulationSize)
	assert.Equal(t, 60.0, cfg.SpeedMultiplier)
	assert.Equal(t, 2*time.Hour, cfg.SimulatedDuration)
	assert.True(t, cfg.StartTime.Equal(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)))
	assert.EqualValues(t, 11, cfg.RNGSeed)
	assert.Equal(t, []string{"slow_drip_export"}, cfg.Scenarios)
	assert.Equal(t, []string{"mon", "tue"}, cfg.BusinessHours.Days, "lists replace defaults")
	assert.Equal(t, map[string]string{"2024-03-05": "Founders Day"}, cfg.HolidayCalendar)
	assert.Equal(t, 10*time.Millisecond, cfg.Backoff.Base)
	assert.Equal(t, 2.0, cfg.Backoff.Factor, "unset nested keys keep defaults")
	assert.Equal(t, SinkSQLite, cfg.Sink.Kind)
	assert.Len(t, cfg.Invariants, 1)
	assert.Equal(t, []string{"favourite_colour"}, cfg.Unused)

	// Defaults survive.
	assert.Equal(t, int64(10), cfg.MaxConcurrentSinkCalls)
	assert.Equal(t, string(simulation.PacingRealtime), cfg.Pacing)

	mix, err := cfg.Roles()
	require.NoError(t, err)
	assert.Equal(t, map[behavior.Role]float64{behavior.RoleAnalyst: 2, behavior.RoleSupport: 1}, mix)
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "auditsim.example.yaml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Unused)
	assert.Equal(t, 60, cfg.PopulationSize)
	assert.Equal(t, 8*time.Hour, cfg.SimulatedDuration)
	assert.Equal(t, 5*time.Minute, cfg.StaggerStart)
	assert.Len(t, cfg.Scenarios, 3)
	assert.Len(t, cfg.Invariants, 2)
	assert.Equal(t, "Company Offsite", cfg.HolidayCalendar["2024-03-08"])

	mix, err := cfg.Roles()
	require.NoError(t, err)
	assert.Len(t, mix, len(behavior.AllRoles()))
}

func TestLoad_JSONAndTOML(t *testing.T) {
	jsonCfg, err := Load(write(t, "sim.json", `{
		"population_size": 5,
		"speed_multiplier": 1,
		"simulated_duration": 3600,
		"pacing": "virtual",
		"grace_period": 0.5
	}`))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, jsonCfg.SimulatedDuration, "bare numbers are seconds")
	assert.Equal(t, 500*time.Millisecond, jsonCfg.GracePeriod)
	assert.Equal(t, "virtual", jsonCfg.Pacing)

	tomlCfg, err := Load(write(t, "sim.toml", `
population_size = 5
speed_multiplier = 120.0
simulated_duration = "30m"
start_time = 2024-03-04T09:00:00Z
scenarios = "slow_drip_export,privilege_escalation"

[sink]
kind = "mock"
fail_first = 1
`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, tomlCfg.SimulatedDuration)
	assert.True(t, tomlCfg.StartTime.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"slow_drip_export", "privilege_escalation"}, tomlCfg.Scenarios)
	assert.Equal(t, 1, tomlCfg.Sink.FailFirst)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"missing keys", "a.yaml", "population_size: 3\n", "speed_multiplier, simulated_duration"},
		{"bad extension", "a.ini", "population_size=3\n", "unsupported"},
		{"malformed", "a.json", "{", "parse"},
		{"zero population", "a.yaml", "population_size: 0\nspeed_multiplier: 1\nsimulated_duration: 1h\n", "population_size"},
		{"bad fraction", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: 1h\nscenario_fraction: 2\n", "scenario_fraction"},
		{"bad duration", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: soon\n", "decode"},
		{"bad role", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: 1h\nrole_mix: {pilot: 1}\n", "unknown role"},
		{"bad sink", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: 1h\nsink: {kind: kafka}\n", "sink kind"},
		{"http without url", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: 1h\nsink: {kind: http}\n", "sink.url"},
		{"bad window", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: 1h\nlunch_window: {start_time: '25:00', end_time: '13:00'}\n", "lunch_window"},
		{"bad invariant", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: 1h\ninvariants: [{metric: p99, condition: '>'}]\n", "invariants[0]"},
		{"bad location", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: 1h\nlocation: Mars/Olympus\n", "location"},
		{"bad pacing", "a.yaml", "population_size: 1\nspeed_multiplier: 1\nsimulated_duration: 1h\npacing: warp\n", "pacing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.file, tt.body))
			require.Error(t, err)
			assert.True(t, simerr.IsKind(err, simerr.KindConfiguration), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_RunsVirtualSimulation(t *testing.T) {
	dir := t.TempDir()
	cfg, err := FromMap(map[string]any{
		"population_size":    12,
		"speed_multiplier":   1,
		"simulated_duration": "3h",
		"start_time":         "2024-03-04T09:00:00Z",
		"pacing":             "virtual",
		"rng_seed":           5,
		"scenario_fraction":  0.5,
		"sink":               map[string]any{"kind": "sqlite", "read_only_roles": []any{"support"}},
		"telemetry": map[string]any{
			"jsonl":  filepath.Join(dir, "records.jsonl"),
			"sqlite": filepath.Join(dir, "records.db"),
		},
	})
	require.NoError(t, err)

	run, err := cfg.Build(logging.NewNop(), WithRecordCopy())
	require.NoError(t, err)
	require.Len(t, run.Population, 12)
	_, isSQLite := run.Sink.(*sink.SQLiteSink)
	assert.True(t, isSQLite)

	report, err := run.Scheduler.Run(context.Background(), run.Population)
	require.NoError(t, err)
	require.NoError(t, run.Close())

	assert.Positive(t, report.Actions)
	assert.EqualValues(t, report.Actions, run.Memory.Len())

	f, err := os.Open(filepath.Join(dir, "records.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	lines, err := telemetry.ReadJSONL(f)
	require.NoError(t, err)
	assert.Len(t, lines, run.Memory.Len())

	db, err := telemetry.NewSQLiteRecorder(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	defer db.Close()
	n, err := db.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.Memory.Len(), n)
}

func TestBuild_UnknownScenario(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"population_size":    1,
		"speed_multiplier":   1,
		"simulated_duration": "1h",
		"scenarios":          []any{"nope"},
	})
	require.NoError(t, err)
	_, err = cfg.Build(logging.NewNop())
	assert.True(t, simerr.IsKind(err, simerr.KindConfiguration))
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.RNGSeed = 9
	cfg.SpeedMultiplier = 10
	cfg.SimulatedDuration = time.Hour
	opts := cfg.Options()
	assert.EqualValues(t, 9, opts.Seed)
	assert.Equal(t, simulation.PacingRealtime, opts.Pacing)
	assert.Equal(t, sink.DefaultBackoff(), opts.Backoff)
	assert.Equal(t, 4.0, opts.OffShiftSlowdown)
}

func TestBuild_RecordCopyOnlyWhenNeeded(t *testing.T) {
	build := func(raw map[string]any, opts ...BuildOption) *Run {
		t.Helper()
		cfg, err := FromMap(raw)
		require.NoError(t, err)
		run, err := cfg.Build(logging.NewNop(), opts...)
		require.NoError(t, err)
		t.Cleanup(func() { run.Close() })
		return run
	}
	base := func() map[string]any {
		return map[string]any{
			"population_size":    2,
			"speed_multiplier":   1,
			"simulated_duration": "1h",
		}
	}

	assert.Nil(t, build(base()).Memory)
	assert.NotNil(t, build(base(), WithRecordCopy()).Memory)

	raw := base()
	raw["telemetry"] = map[string]any{"csv": filepath.Join(t.TempDir(), "records.csv")}
	assert.NotNil(t, build(raw).Memory)
}
