// Package agent holds the simulated actors and the population builder.
package agent

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/calendar"
)

// PromotionThreshold is the number of emitted actions after which an agent
// is treated as one expertise level higher.
const PromotionThreshold = 200

// Expertise is an agent's skill level.
type Expertise int

const (
	Novice Expertise = iota
	Intermediate
	Expert
)

var expertiseNames = [...]string{"novice", "intermediate", "expert"}

func (e Expertise) String() string {
	if e < Novice || e > Expert {
		return fmt.Sprintf("expertise(%d)", int(e))
	}
	return expertiseNames[e]
}

// ParseExpertise maps a name to its Expertise.
func ParseExpertise(s string) (Expertise, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range expertiseNames {
		if n == name {
			return Expertise(i), nil
		}
	}
	return Novice, fmt.Errorf("unknown expertise %q", s)
}

// Weight is the expertise contribution to payload complexity, in [0,1].
func (e Expertise) Weight() float64 {
	switch e {
	case Expert:
		return 0.85
	case Intermediate:
		return 0.5
	default:
		return 0.2
	}
}

// WorkSchedule describes when an agent normally works.
type WorkSchedule struct {
	Hours              calendar.TimeWindow
	Weekends           bool
	Holidays           bool
	OvertimeAuthorized bool
	Overtime           calendar.TimeWindow
}

// Agent is a simulated actor. Identity fields are fixed at construction.
// The state and counters are written only by the agent's own runtime; they
// are atomic so progress views can read them while the run is live.
type Agent struct {
	ID         string
	Role       behavior.Role
	Department string
	Expertise  Expertise
	Schedule   WorkSchedule
	Seed       int64

	hours    calendar.Window
	overtime calendar.Window

	state atomic.Value

	actions          atomic.Int64
	failures         atomic.Int64
	retries          atomic.Int64
	generationErrors atomic.Int64
	scenarioActions  atomic.Int64
}

// New builds an agent, compiling its schedule windows in loc.
func New(id string, role behavior.Role, expertise Expertise, ws WorkSchedule, seed int64, loc *time.Location) (*Agent, error) {
	hours, err := calendar.Compile(ws.Hours, loc)
	if err != nil {
		return nil, fmt.Errorf("agent %s: hours: %w", id, err)
	}
	overtime, err := calendar.Compile(ws.Overtime, loc)
	if err != nil {
		return nil, fmt.Errorf("agent %s: overtime: %w", id, err)
	}

	a := &Agent{
		ID:         id,
		Role:       role,
		Department: role.Department(),
		Expertise:  expertise,
		Schedule:   ws,
		Seed:       seed,
		hours:      hours,
		overtime:   overtime,
	}
	a.state.Store(behavior.StateIdle)
	return a, nil
}

// State returns the agent's current behavior state.
func (a *Agent) State() behavior.State {
	s, _ := a.state.Load().(behavior.State)
	return s
}

// SetState is called only by the owning runtime.
func (a *Agent) SetState(s behavior.State) {
	a.state.Store(s)
}

// OnShift reports whether t is inside the agent's regular hours, honoring
// its weekend and holiday policy.
func (a *Agent) OnShift(t time.Time, cal *calendar.Calendar) bool {
	if !a.Schedule.Weekends && cal.IsWeekend(t) {
		return false
	}
	if !a.Schedule.Holidays && cal.IsHoliday(t) {
		return false
	}
	return a.hours.Contains(t)
}

// InOvertime reports whether t falls inside authorized overtime.
func (a *Agent) InOvertime(t time.Time) bool {
	return a.Schedule.OvertimeAuthorized && a.overtime.Contains(t)
}

// EffectiveExpertise is the configured expertise, promoted by one level once
// the agent has emitted PromotionThreshold actions.
func (a *Agent) EffectiveExpertise() Expertise {
	e := a.Expertise
	if a.actions.Load() >= PromotionThreshold && e < Expert {
		e++
	}
	return e
}

// RecordOutcome updates the counters for one emitted action.
func (a *Agent) RecordOutcome(o action.Outcome, scenario bool) {
	a.actions.Add(1)
	if !o.Success {
		a.failures.Add(1)
	}
	if o.Retries > 0 {
		a.retries.Add(int64(o.Retries))
	}
	if scenario {
		a.scenarioActions.Add(1)
	}
}

// RecordGenerationError counts a tick lost to a generation fault.
func (a *Agent) RecordGenerationError() {
	a.generationErrors.Add(1)
}

// Counters is a point-in-time copy of an agent's counters.
type Counters struct {
	Actions          int64 `json:"actions"`
	Failures         int64 `json:"failures"`
	Retries          int64 `json:"retries"`
	GenerationErrors int64 `json:"generation_errors"`
	ScenarioActions  int64 `json:"scenario_actions"`
}

// Counters snapshots the counters.
func (a *Agent) Counters() Counters {
	return Counters{
		Actions:          a.actions.Load(),
		Failures:         a.failures.Load(),
		Retries:          a.retries.Load(),
		GenerationErrors: a.generationErrors.Load(),
		ScenarioActions:  a.scenarioActions.Load(),
	}
}

// Actions returns the number of actions emitted so far.
func (a *Agent) Actions() int64 { return a.actions.Load() }
