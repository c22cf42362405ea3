// Package scenario runs multi-stage adversarial behavior sequences on top
// of the normal agent loop.
package scenario

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/simerr"
)

// DefaultMaxStageAttempts bounds how often one stage may be retried.
const DefaultMaxStageAttempts = 3

// Stage is one step of a scenario. Payload is a text/template rendered with
// the agent id, target, stage index, attempt number and simulated time.
type Stage struct {
	Name        string             `json:"name" yaml:"name"`
	When        Predicate          `json:"when" yaml:"when"`
	Target      string             `json:"target" yaml:"target"`
	Operation   action.Operation   `json:"operation" yaml:"operation"`
	Payload     string             `json:"payload" yaml:"payload"`
	Complexity  action.Complexity  `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Sensitivity action.Sensitivity `json:"sensitivity" yaml:"sensitivity"`
	Success     SuccessPredicate   `json:"success,omitempty" yaml:"success,omitempty"`
}

// Definition is an immutable, ordered list of stages.
type Definition struct {
	Name             string          `json:"name" yaml:"name"`
	Description      string          `json:"description" yaml:"description"`
	Roles            []behavior.Role `json:"roles,omitempty" yaml:"roles,omitempty"`
	Stages           []Stage         `json:"stages" yaml:"stages"`
	MaxStageAttempts int             `json:"max_stage_attempts,omitempty" yaml:"max_stage_attempts,omitempty"`
}

// AllowsRole reports whether agents of role may run the scenario. An empty
// role list admits every staffed role.
func (d Definition) AllowsRole(r behavior.Role) bool {
	if len(d.Roles) == 0 {
		return r.Human()
	}
	for _, allowed := range d.Roles {
		if allowed == r {
			return true
		}
	}
	return false
}

type payloadData struct {
	Agent   string
	Target  string
	Stage   int
	Attempt int
	Lo      int
	Hi      int
	Now     string
}

type entry struct {
	def      Definition
	payloads []*template.Template
}

func (e *entry) render(stage int, agentID string, attempt int, now time.Time) (string, error) {
	s := e.def.Stages[stage]
	var buf bytes.Buffer
	err := e.payloads[stage].Execute(&buf, payloadData{
		Agent:   agentID,
		Target:  s.Target,
		Stage:   stage,
		Attempt: attempt,
		Lo:      stage*50 + 1,
		Hi:      stage*50 + 50,
		Now:     now.Format(time.RFC3339),
	})
	return buf.String(), err
}

// Registry holds validated scenario definitions in registration order.
type Registry struct {
	entries []*entry
	byName  map[string]*entry
}

// NewRegistry validates defs. Invalid definitions are configuration errors.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{byName: make(map[string]*entry, len(defs))}
	for _, d := range defs {
		e, err := compileDefinition(d)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, simerr.Configuration("scenario.NewRegistry", "duplicate scenario %q", d.Name)
		}
		r.entries = append(r.entries, e)
		r.byName[d.Name] = e
	}
	return r, nil
}

func compileDefinition(d Definition) (*entry, error) {
	op := "scenario[" + d.Name + "]"
	if d.Name == "" {
		return nil, simerr.Configuration("scenario.NewRegistry", "scenario without a name")
	}
	if len(d.Stages) == 0 {
		return nil, simerr.Configuration(op, "no stages")
	}
	if d.MaxStageAttempts <= 0 {
		d.MaxStageAttempts = DefaultMaxStageAttempts
	}
	for _, role := range d.Roles {
		if _, err := behavior.ParseRole(string(role)); err != nil {
			return nil, simerr.Configuration(op, "%v", err)
		}
	}

	e := &entry{def: d}
	e.def.Roles = append([]behavior.Role(nil), d.Roles...)
	e.def.Stages = append([]Stage(nil), d.Stages...)
	for i, s := range e.def.Stages {
		if !s.When.Valid() {
			return nil, simerr.Configuration(op, "stage %d: unknown predicate %q", i, s.When)
		}
		if !s.Success.Valid() {
			return nil, simerr.Configuration(op, "stage %d: unknown success predicate %q", i, s.Success)
		}
		if s.Target == "" || s.Operation == "" {
			return nil, simerr.Configuration(op, "stage %d: target and operation are required", i)
		}
		if s.Complexity == "" {
			e.def.Stages[i].Complexity = action.Intermediate
		}
		t, err := template.New(fmt.Sprintf("%s/%d", d.Name, i)).Option("missingkey=error").Parse(s.Payload)
		if err != nil {
			return nil, simerr.Configuration(op, "stage %d: payload: %v", i, err)
		}
		e.payloads = append(e.payloads, t)
	}
	return e, nil
}

// Lookup returns the named definition.
func (r *Registry) Lookup(name string) (Definition, bool) {
	e, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// Names returns the scenario names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.def.Name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.def
	}
	return out
}

// Len returns the number of definitions.
func (r *Registry) Len() int { return len(r.entries) }

// Filter returns a registry with only the named scenarios. An empty list
// keeps everything.
func (r *Registry) Filter(names []string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	out := &Registry{byName: make(map[string]*entry, len(names))}
	for _, n := range names {
		e, ok := r.byName[n]
		if !ok {
			return nil, simerr.Configuration("scenario.Filter", "unknown scenario %q", n)
		}
		if _, dup := out.byName[n]; dup {
			continue
		}
		out.entries = append(out.entries, e)
		out.byName[n] = e
	}
	return out, nil
}
