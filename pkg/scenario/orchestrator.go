package scenario

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/metrics"
	"github.com/rmax-ai/auditsim/pkg/situation"
)

// Status is the lifecycle state of an instance.
type Status string

const (
	Pending    Status = "PENDING"
	InProgress Status = "IN_PROGRESS"
	Completed  Status = "COMPLETED"
	Aborted    Status = "ABORTED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Completed || s == Aborted
}

// Instance is a snapshot of one running scenario.
type Instance struct {
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario"`
	AgentID   string    `json:"agent_id"`
	Stage     int       `json:"stage"`
	Stages    int       `json:"stages"`
	Attempts  int       `json:"attempts"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

type instance struct {
	Instance
	entry *entry
}

// StepKind tells the runtime what to do with the result of Advance.
type StepKind int

const (
	// StepAct carries the next stage's action.
	StepAct StepKind = iota
	// StepDefer means the stage predicate does not hold; generate normally.
	StepDefer
	// StepDone means the instance is terminal; release it.
	StepDone
)

// Step is the result of Advance.
type Step struct {
	Kind     StepKind
	Action   action.Action
	Instance Instance
}

// Orchestrator owns every scenario instance. All reads and writes of the
// assignment registry go through one mutex, so assignment and terminal
// transitions are atomic with respect to concurrent agents.
type Orchestrator struct {
	registry  *Registry
	fraction  float64
	namespace uuid.UUID
	logger    *slog.Logger

	mu       sync.Mutex
	byAgent  map[string]*instance
	assigned map[string]bool
	all      []*instance
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSeed namespaces instance ids by run seed so equal seeds yield equal ids.
func WithSeed(seed int64) Option {
	return func(o *Orchestrator) {
		o.namespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("auditsim/%d", seed)))
	}
}

// NewOrchestrator assigns scenarios from reg to roughly fraction of the
// agents offered to TryAssign.
func NewOrchestrator(reg *Registry, fraction float64, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  reg,
		fraction:  fraction,
		namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte("auditsim")),
		byAgent:   make(map[string]*instance),
		assigned:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDefault(o.logger).With("component", "scenario")
	return o
}

// Registry returns the orchestrator's scenario registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// eligible lists the scenarios a may run. Agents authorized for overtime
// are never offered a scenario that opens with an off-hours stage, so a
// sanctioned late shift is never mislabeled as a bypass.
func (o *Orchestrator) eligible(a *agent.Agent) []*entry {
	var out []*entry
	for _, e := range o.registry.entries {
		if !e.def.AllowsRole(a.Role) {
			continue
		}
		if a.Schedule.OvertimeAuthorized && e.def.Stages[0].When == OffHours {
			continue
		}
		out = append(out, e)
	}
	return out
}

// TryAssign offers agent a a scenario. An agent that has ever held an
// instance is never selected again. rng decides selection and which
// eligible scenario is picked.
func (o *Orchestrator) TryAssign(a *agent.Agent, rng *rand.Rand) (Instance, bool) {
	if o.registry == nil || o.registry.Len() == 0 || o.fraction <= 0 {
		return Instance{}, false
	}
	u := rng.Float64()
	pick := rng.Int()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.assigned[a.ID] || u >= o.fraction {
		return Instance{}, false
	}
	candidates := o.eligible(a)
	if len(candidates) == 0 {
		return Instance{}, false
	}
	e := candidates[pick%len(candidates)]

	inst := &instance{
		Instance: Instance{
			ID:       uuid.NewSHA1(o.namespace, []byte(a.ID+"/"+e.def.Name)).String(),
			Scenario: e.def.Name,
			AgentID:  a.ID,
			Stages:   len(e.def.Stages),
			Status:   Pending,
		},
		entry: e,
	}
	o.assigned[a.ID] = true
	o.byAgent[a.ID] = inst
	o.all = append(o.all, inst)

	metrics.ScenarioTransitionsTotal.WithLabelValues(e.def.Name, string(Pending)).Inc()
	o.logger.Info("scenario assigned", "agent_id", a.ID, "scenario", e.def.Name, "instance_id", inst.ID)
	return inst.Instance, true
}

// Advance returns the next stage's action for a's instance when the stage
// predicate holds in sit, a deferral when it does not, or Done when the
// instance is terminal or absent.
func (o *Orchestrator) Advance(a *agent.Agent, sit situation.Situation, seq uint64) Step {
	o.mu.Lock()
	defer o.mu.Unlock()

	inst, ok := o.byAgent[a.ID]
	if !ok || inst.Status.Terminal() {
		if ok {
			return Step{Kind: StepDone, Instance: inst.Instance}
		}
		return Step{Kind: StepDone}
	}

	stage := inst.entry.def.Stages[inst.Stage]
	if !stage.When.Holds(sit) {
		return Step{Kind: StepDefer, Instance: inst.Instance}
	}

	payload, err := inst.entry.render(inst.Stage, a.ID, inst.Attempts+1, sit.Timestamp)
	if err != nil {
		o.terminate(inst, Aborted, sit.Timestamp, fmt.Sprintf("stage %s: render payload: %v", stage.Name, err))
		return Step{Kind: StepDone, Instance: inst.Instance}
	}

	if inst.Status == Pending {
		inst.Status = InProgress
		inst.StartedAt = sit.Timestamp
		metrics.ScenarioTransitionsTotal.WithLabelValues(inst.Scenario, string(InProgress)).Inc()
	}
	inst.Attempts++

	act := action.Action{
		ID:           action.FormatID(a.ID, seq),
		Seq:          seq,
		AgentID:      a.ID,
		Role:         a.Role,
		Department:   a.Department,
		State:        sit.State,
		Target:       stage.Target,
		Operation:    stage.Operation,
		Payload:      payload,
		Complexity:   stage.Complexity,
		Tier:         action.TierScenario,
		Sensitivity:  stage.Sensitivity,
		SimTime:      sit.Timestamp,
		ScenarioID:   inst.ID,
		ScenarioName: inst.Scenario,
		Stage:        inst.Stage,
	}
	return Step{Kind: StepAct, Action: act, Instance: inst.Instance}
}

// Complete reports the outcome of the action Advance last returned for
// agentID. A satisfied success predicate moves the stage pointer forward
// (never back); an unsatisfied one leaves it in place until the stage's
// attempts are exhausted, which aborts the instance.
func (o *Orchestrator) Complete(agentID string, at time.Time, outcome action.Outcome) Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	inst, ok := o.byAgent[agentID]
	if !ok {
		return ""
	}
	if inst.Status != InProgress {
		return inst.Status
	}

	def := inst.entry.def
	stage := def.Stages[inst.Stage]
	switch {
	case stage.Success.Holds(outcome):
		inst.Stage++
		inst.Attempts = 0
		if inst.Stage == len(def.Stages) {
			o.terminate(inst, Completed, at, "")
		}
	case inst.Attempts >= def.MaxStageAttempts:
		o.terminate(inst, Aborted, at, fmt.Sprintf("stage %s failed %d times", stage.Name, inst.Attempts))
	}
	return inst.Status
}

// Release drops a terminal instance from its agent. Releasing a live
// instance aborts it first.
func (o *Orchestrator) Release(agentID string, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	inst, ok := o.byAgent[agentID]
	if !ok {
		return
	}
	if !inst.Status.Terminal() {
		o.terminate(inst, Aborted, at, "released")
	}
	delete(o.byAgent, agentID)
}

// Abort aborts agentID's live instance, if any.
func (o *Orchestrator) Abort(agentID string, at time.Time, reason string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	inst, ok := o.byAgent[agentID]
	if !ok || inst.Status.Terminal() {
		return false
	}
	o.terminate(inst, Aborted, at, reason)
	return true
}

// AbortAll aborts every live instance and returns how many were aborted.
func (o *Orchestrator) AbortAll(at time.Time, reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, inst := range o.all {
		if inst.Status.Terminal() {
			continue
		}
		o.terminate(inst, Aborted, at, reason)
		n++
	}
	return n
}

// terminate must be called with mu held.
func (o *Orchestrator) terminate(inst *instance, s Status, at time.Time, reason string) {
	inst.Status = s
	inst.EndedAt = at
	inst.Reason = reason
	metrics.ScenarioTransitionsTotal.WithLabelValues(inst.Scenario, string(s)).Inc()
	o.logger.Info("scenario finished",
		"agent_id", inst.AgentID,
		"scenario", inst.Scenario,
		"status", s,
		"stage", inst.Stage,
		"reason", reason,
	)
}

// Active returns agentID's instance while it is not terminal.
func (o *Orchestrator) Active(agentID string) (Instance, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	inst, ok := o.byAgent[agentID]
	if !ok || inst.Status.Terminal() {
		return Instance{}, false
	}
	return inst.Instance, true
}

// Holds reports whether agentID still has an instance attached, terminal
// or not.
func (o *Orchestrator) Holds(agentID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.byAgent[agentID]
	return ok
}

// ScenarioStats counts instances of one scenario by status.
type ScenarioStats struct {
	Assigned   int `json:"assigned"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Aborted    int `json:"aborted"`
}

func (s *ScenarioStats) add(st Status) {
	s.Assigned++
	switch st {
	case Pending:
		s.Pending++
	case InProgress:
		s.InProgress++
	case Completed:
		s.Completed++
	case Aborted:
		s.Aborted++
	}
}

// Stats aggregates every instance ever assigned.
type Stats struct {
	ScenarioStats
	ByScenario map[string]ScenarioStats `json:"by_scenario"`
}

// Stats snapshots instance counts.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Stats{ByScenario: make(map[string]ScenarioStats)}
	for _, inst := range o.all {
		st.add(inst.Status)
		s := st.ByScenario[inst.Scenario]
		s.add(inst.Status)
		st.ByScenario[inst.Scenario] = s
	}
	return st
}

// Instances snapshots every instance ever assigned, ordered by agent id.
func (o *Orchestrator) Instances() []Instance {
	o.mu.Lock()
	out := make([]Instance, len(o.all))
	for i, inst := range o.all {
		out[i] = inst.Instance
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
