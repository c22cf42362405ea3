// Package behavior holds the per-role Markov models that drive agents.
//
// A Model maps (role, state) to a validated distribution over next states
// and a wait-time distribution. Models are validated once at construction
// and are immutable afterwards, so they can be shared by every agent
// without locking.
package behavior

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rmax-ai/auditsim/pkg/simerr"
)

// Epsilon is the tolerance for a row of transition weights to sum to one.
const Epsilon = 1e-6

// MinWait is the shortest wait ever returned, so a loop always advances.
const MinWait = time.Second

// WaitKind selects the wait-time distribution.
type WaitKind string

const (
	WaitExponential WaitKind = "exponential"
	WaitUniform     WaitKind = "uniform"
	WaitLogNormal   WaitKind = "lognormal"
	WaitFixed       WaitKind = "fixed"
	WaitCron        WaitKind = "cron"
)

// WaitSpec describes how long an agent dwells in a state before its next
// tick. Min and Max clamp the sampled value when set.
type WaitSpec struct {
	Kind  WaitKind      `json:"kind" yaml:"kind"`
	Mean  time.Duration `json:"mean,omitempty" yaml:"mean,omitempty"`
	Min   time.Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max   time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
	Sigma float64       `json:"sigma,omitempty" yaml:"sigma,omitempty"`
	Cron  string        `json:"cron,omitempty" yaml:"cron,omitempty"`
}

// ProfileSpec is the loadable description of one role's behavior.
type ProfileSpec struct {
	Role        Role                        `json:"role" yaml:"role"`
	Transitions map[State]map[State]float64 `json:"transitions" yaml:"transitions"`
	Waits       map[State]WaitSpec          `json:"waits" yaml:"waits"`
}

// Edge is one outgoing transition with its cumulative weight.
type Edge struct {
	To     State
	Weight float64
	cum    float64
}

type waitSampler struct {
	spec     WaitSpec
	schedule cron.Schedule
}

type profile struct {
	role  Role
	rows  map[State][]Edge
	waits map[State]waitSampler
}

// Model is an immutable set of validated role profiles.
type Model struct {
	profiles map[Role]*profile
}

var defaultWait = WaitSpec{Kind: WaitExponential, Mean: time.Minute}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewModel validates specs and builds a Model. Any malformed row is a
// configuration error: weights that do not sum to 1 within Epsilon, negative
// weights, unknown states, reachable states without a row, or unparsable
// cron expressions.
func NewModel(specs ...ProfileSpec) (*Model, error) {
	if len(specs) == 0 {
		return nil, simerr.Configuration("behavior.NewModel", "no role profiles given")
	}

	m := &Model{profiles: make(map[Role]*profile, len(specs))}
	for _, spec := range specs {
		if _, err := ParseRole(string(spec.Role)); err != nil {
			return nil, simerr.Configuration("behavior.NewModel", "%v", err)
		}
		if _, dup := m.profiles[spec.Role]; dup {
			return nil, simerr.Configuration("behavior.NewModel", "duplicate profile for role %s", spec.Role)
		}
		p, err := buildProfile(spec)
		if err != nil {
			return nil, err
		}
		m.profiles[spec.Role] = p
	}
	return m, nil
}

func buildProfile(spec ProfileSpec) (*profile, error) {
	op := fmt.Sprintf("behavior.profile[%s]", spec.Role)
	if len(spec.Transitions) == 0 {
		return nil, simerr.Configuration(op, "no transitions")
	}

	p := &profile{
		role:  spec.Role,
		rows:  make(map[State][]Edge, len(spec.Transitions)),
		waits: make(map[State]waitSampler, len(spec.Transitions)),
	}

	for from, row := range spec.Transitions {
		if !from.Valid() {
			return nil, simerr.Configuration(op, "unknown state %q", from)
		}
		if len(row) == 0 {
			return nil, simerr.Configuration(op, "state %s has no outgoing transitions", from)
		}

		edges := make([]Edge, 0, len(row))
		var sum float64
		for to, w := range row {
			if !to.Valid() {
				return nil, simerr.Configuration(op, "state %s: unknown target state %q", from, to)
			}
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, simerr.Configuration(op, "state %s: invalid weight %v for %s", from, w, to)
			}
			sum += w
			edges = append(edges, Edge{To: to, Weight: w})
		}
		if math.Abs(sum-1) > Epsilon {
			return nil, simerr.Configuration(op, "state %s: weights sum to %.9f, want 1", from, sum)
		}

		// Map order is random; the draw must not be.
		sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
		var cum float64
		for i := range edges {
			cum += edges[i].Weight
			edges[i].cum = cum
		}
		p.rows[from] = edges
	}

	for from, edges := range p.rows {
		for _, e := range edges {
			if e.Weight == 0 {
				continue
			}
			if _, ok := p.rows[e.To]; !ok {
				return nil, simerr.Configuration(op, "state %s reachable from %s but has no transitions", e.To, from)
			}
		}
	}

	for state := range p.rows {
		w, ok := spec.Waits[state]
		if !ok {
			w = defaultWait
		}
		ws, err := buildWait(op, state, w)
		if err != nil {
			return nil, err
		}
		p.waits[state] = ws
	}
	for state := range spec.Waits {
		if _, ok := p.rows[state]; !ok {
			return nil, simerr.Configuration(op, "wait given for state %s without transitions", state)
		}
	}

	return p, nil
}

func buildWait(op string, state State, spec WaitSpec) (waitSampler, error) {
	if spec.Kind == "" {
		spec.Kind = WaitExponential
	}
	if spec.Min > 0 && spec.Max > 0 && spec.Min > spec.Max {
		return waitSampler{}, simerr.Configuration(op, "state %s: wait min %s exceeds max %s", state, spec.Min, spec.Max)
	}

	ws := waitSampler{spec: spec}
	switch spec.Kind {
	case WaitExponential, WaitFixed:
		if spec.Mean <= 0 {
			return waitSampler{}, simerr.Configuration(op, "state %s: %s wait needs a positive mean", state, spec.Kind)
		}
	case WaitLogNormal:
		if spec.Mean <= 0 || spec.Sigma < 0 {
			return waitSampler{}, simerr.Configuration(op, "state %s: lognormal wait needs mean > 0 and sigma >= 0", state)
		}
	case WaitUniform:
		if spec.Max <= 0 || spec.Min > spec.Max {
			return waitSampler{}, simerr.Configuration(op, "state %s: uniform wait needs 0 <= min <= max", state)
		}
	case WaitCron:
		sched, err := cronParser.Parse(spec.Cron)
		if err != nil {
			return waitSampler{}, simerr.Configuration(op, "state %s: bad cron %q: %v", state, spec.Cron, err)
		}
		ws.schedule = sched
	default:
		return waitSampler{}, simerr.Configuration(op, "state %s: unknown wait kind %q", state, spec.Kind)
	}
	return ws, nil
}

func (m *Model) profile(role Role) (*profile, error) {
	p, ok := m.profiles[role]
	if !ok {
		return nil, fmt.Errorf("no behavior profile for role %s", role)
	}
	return p, nil
}

// Roles returns the roles the model covers, sorted.
func (m *Model) Roles() []Role {
	roles := make([]Role, 0, len(m.profiles))
	for r := range m.profiles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Has reports whether the model has a profile for role.
func (m *Model) Has(role Role) bool {
	_, ok := m.profiles[role]
	return ok
}

// States returns the states with an outgoing row for role, sorted.
func (m *Model) States(role Role) []State {
	p, ok := m.profiles[role]
	if !ok {
		return nil
	}
	states := make([]State, 0, len(p.rows))
	for s := range p.rows {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}

// Row returns a copy of the outgoing distribution for (role, state).
func (m *Model) Row(role Role, state State) ([]Edge, bool) {
	p, ok := m.profiles[role]
	if !ok {
		return nil, false
	}
	row, ok := p.rows[state]
	if !ok {
		return nil, false
	}
	out := make([]Edge, len(row))
	copy(out, row)
	return out, true
}

// InitialState returns the state new agents of role start in.
func (m *Model) InitialState(role Role) State {
	if _, ok := m.Row(role, StateIdle); ok {
		return StateIdle
	}
	states := m.States(role)
	if len(states) == 0 {
		return StateIdle
	}
	return states[0]
}

// NextState draws the next state for (role, current) from rng.
func (m *Model) NextState(role Role, current State, rng *rand.Rand) (State, error) {
	p, err := m.profile(role)
	if err != nil {
		return "", err
	}
	row, ok := p.rows[current]
	if !ok {
		return "", fmt.Errorf("role %s has no transitions from state %s", role, current)
	}

	u := rng.Float64() * row[len(row)-1].cum
	for _, e := range row {
		if u < e.cum {
			return e.To, nil
		}
	}
	return row[len(row)-1].To, nil
}

// WaitTime samples how long an agent of role stays in state, measured in
// simulated time from simNow. Cron waits run until the next firing after
// simNow. The result is never below MinWait.
func (m *Model) WaitTime(role Role, state State, simNow time.Time, rng *rand.Rand) (time.Duration, error) {
	p, err := m.profile(role)
	if err != nil {
		return 0, err
	}
	ws, ok := p.waits[state]
	if !ok {
		return 0, fmt.Errorf("role %s has no wait for state %s", role, state)
	}
	return ws.sample(simNow, rng), nil
}

func (w waitSampler) sample(simNow time.Time, rng *rand.Rand) time.Duration {
	s := w.spec
	var d time.Duration
	switch s.Kind {
	case WaitFixed:
		d = s.Mean
	case WaitUniform:
		span := s.Max - s.Min
		d = s.Min
		if span > 0 {
			d += time.Duration(rng.Int63n(int64(span) + 1))
		}
	case WaitLogNormal:
		// Shift mu so Mean is the distribution's mean, not its median.
		mu := math.Log(float64(s.Mean)) - s.Sigma*s.Sigma/2
		d = time.Duration(math.Exp(mu + s.Sigma*rng.NormFloat64()))
	case WaitCron:
		d = w.schedule.Next(simNow).Sub(simNow)
	default:
		d = time.Duration(rng.ExpFloat64() * float64(s.Mean))
	}

	if s.Min > 0 && d < s.Min {
		d = s.Min
	}
	if s.Max > 0 && d > s.Max {
		d = s.Max
	}
	if d < MinWait {
		d = MinWait
	}
	return d
}
