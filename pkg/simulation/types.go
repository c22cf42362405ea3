package simulation

import (
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/scenario"
	"github.com/rmax-ai/auditsim/pkg/sink"
)

// Pacing selects how runtimes follow simulated time.
type Pacing string

const (
	// PacingRealtime sleeps until the shared clock reaches each tick.
	PacingRealtime Pacing = "realtime"
	// PacingVirtual runs each agent's timeline without sleeping. Output is
	// fully determined by the seed.
	PacingVirtual Pacing = "virtual"
)

// Valid reports whether p is a known pacing mode.
func (p Pacing) Valid() bool {
	return p == PacingRealtime || p == PacingVirtual
}

// Options tunes a Scheduler.
type Options struct {
	Seed     int64
	Start    time.Time
	Speed    float64
	Duration time.Duration
	Pacing   Pacing

	// StaggerStart spreads first ticks uniformly over this much simulated time.
	StaggerStart time.Duration
	// GracePeriod is how long (wall time) runtimes may take to drain after
	// the deadline before they are force-aborted.
	GracePeriod time.Duration

	MaxRetries int
	Backoff    sink.Backoff

	// OffShiftSlowdown stretches waits of agents outside their schedule.
	// Values <= 1 disable it.
	OffShiftSlowdown float64

	Invariants []Invariant
}

// DefaultGracePeriod applies when Options.GracePeriod is zero.
const DefaultGracePeriod = 5 * time.Second

// Report is the final, consistent summary of a run. Counters cover only
// runtimes that drained; force-aborted runtimes are listed but excluded.
type Report struct {
	RunID  string `json:"run_id"`
	Seed   int64  `json:"seed"`
	Pacing Pacing `json:"pacing"`

	Start            time.Time     `json:"start"`
	End              time.Time     `json:"end"`
	SimulatedElapsed time.Duration `json:"simulated_elapsed"`
	WallElapsed      time.Duration `json:"wall_elapsed"`

	Agents        int      `json:"agents"`
	Finished      int      `json:"finished"`
	Running       int      `json:"running"`
	AbortedAgents []string `json:"aborted_agents,omitempty"`

	Actions          int64 `json:"actions"`
	Succeeded        int64 `json:"succeeded"`
	Failed           int64 `json:"failed"`
	Retries          int64 `json:"retries"`
	GenerationErrors int64 `json:"generation_errors"`
	RecordErrors     int64 `json:"record_errors"`
	ScenarioActions  int64 `json:"scenario_actions"`

	TierUsage  map[action.Tier]int64 `json:"tier_usage"`
	ErrorKinds map[string]int64      `json:"error_kinds"`
	Scenarios  scenario.Stats        `json:"scenarios"`

	PeakInFlight int64 `json:"peak_in_flight"`
	SinkCapacity int64 `json:"sink_capacity"`

	PerAgent map[string]AgentReport `json:"per_agent"`

	Invariants []InvariantResult `json:"invariants,omitempty"`
	Success    bool              `json:"success"`
}

// AgentReport is one agent's share of the report.
type AgentReport struct {
	Role      string         `json:"role"`
	Expertise string         `json:"expertise"`
	Counters  agent.Counters `json:"counters"`
	LastState string         `json:"last_state"`
}

// Invariant is a condition the run must satisfy for Report.Success.
type Invariant struct {
	Metric    string  `json:"metric" yaml:"metric" mapstructure:"metric"`          // success_rate, failure_rate, retry_rate, scenario_completion_rate, generation_error_rate
	Condition string  `json:"condition" yaml:"condition" mapstructure:"condition"` // >, >=, <, <=, ==
	Value     float64 `json:"value" yaml:"value" mapstructure:"value"`
	Scope     string  `json:"scope" yaml:"scope" mapstructure:"scope"` // "global", a role, or an agent id
}

type InvariantResult struct {
	Metric   string `json:"metric"`
	Scope    string `json:"scope"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// Progress is a live snapshot of a running simulation.
type Progress struct {
	SimNow    time.Time        `json:"sim_now"`
	Fraction  float64          `json:"fraction"`
	Agents    int              `json:"agents"`
	Running   int              `json:"running"`
	Actions   int64            `json:"actions"`
	Failures  int64            `json:"failures"`
	InFlight  int64            `json:"in_flight"`
	Scenarios scenario.Stats   `json:"scenarios"`
	ByRole    map[string]int64 `json:"by_role"`
	Done      bool             `json:"done"`
}
