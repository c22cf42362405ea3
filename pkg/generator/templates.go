package generator

import (
	"bytes"
	"math/rand"
	"text/template"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/catalog"
	"github.com/rmax-ai/auditsim/pkg/simerr"
)

// TemplateKey selects templates by role and operation.
type TemplateKey struct {
	Role      behavior.Role
	Operation action.Operation
}

// TemplateSpec is one static payload template.
type TemplateSpec struct {
	Complexity action.Complexity
	Text       string
}

// Library maps keys to candidate templates.
type Library map[TemplateKey][]TemplateSpec

type templateData struct {
	Table string
	Agent string
	Grant string
	ID    int
	Lo    int
	Hi    int
	Limit int
	Now   string
}

// DefaultTemplates returns the built-in template library.
func DefaultTemplates() Library {
	generic := map[action.Operation][]TemplateSpec{
		action.OpSelect: {
			{action.Simple, "SELECT * FROM {{.Table}} WHERE id = {{.ID}}"},
			{action.Intermediate, "SELECT * FROM {{.Table}} WHERE id BETWEEN {{.Lo}} AND {{.Hi}} ORDER BY id"},
		},
		action.OpExport: {
			{action.Simple, "SELECT * FROM {{.Table}} LIMIT {{.Limit}}"},
		},
		action.OpUpdate: {
			{action.Simple, "UPDATE {{.Table}} SET id = id WHERE id = {{.ID}}"},
		},
		action.OpInsert: {
			{action.Simple, "INSERT INTO {{.Table}} DEFAULT VALUES"},
		},
		action.OpDelete: {
			{action.Simple, "DELETE FROM {{.Table}} WHERE id = {{.ID}}"},
		},
	}

	lib := make(Library)
	for _, role := range behavior.AllRoles() {
		for op, specs := range generic {
			lib[TemplateKey{role, op}] = specs
		}
	}

	grant := []TemplateSpec{{action.Intermediate,
		"INSERT INTO access_grants (grantee, entity, privilege, granted_at) VALUES ('{{.Agent}}', '{{.Grant}}', 'read', '{{.Now}}')"}}
	lib[TemplateKey{behavior.RoleDBA, action.OpGrant}] = grant
	lib[TemplateKey{behavior.RoleEngineer, action.OpGrant}] = grant

	lib[TemplateKey{behavior.RoleFinance, action.OpExport}] = append(lib[TemplateKey{behavior.RoleFinance, action.OpExport}],
		TemplateSpec{action.Intermediate, "SELECT * FROM {{.Table}} WHERE id BETWEEN {{.Lo}} AND {{.Hi}}"})
	return lib
}

type compiled struct {
	complexity action.Complexity
	tmpl       *template.Template
}

// Templates is the second tier: static role/operation templates over the
// role's full clearance rather than the situational sensitivity.
type Templates struct {
	cat *catalog.Catalog
	lib map[TemplateKey][]compiled
}

// NewTemplates compiles lib. The library is static data, so a malformed
// template panics.
func NewTemplates(cat *catalog.Catalog, lib Library) *Templates {
	t := &Templates{cat: cat, lib: make(map[TemplateKey][]compiled, len(lib))}
	for key, specs := range lib {
		for _, s := range specs {
			name := string(key.Role) + "/" + string(key.Operation)
			t.lib[key] = append(t.lib[key], compiled{
				complexity: s.Complexity,
				tmpl:       template.Must(template.New(name).Option("missingkey=error").Parse(s.Text)),
			})
		}
	}
	return t
}

func (t *Templates) Tier() action.Tier { return action.TierTemplate }

func (t *Templates) Generate(req Request, rng *rand.Rand) (action.Action, error) {
	op, err := opFor(req.State, rng)
	if err != nil {
		return action.Action{}, simerr.Generation(string(action.TierTemplate), "%v", err)
	}

	candidates := t.lib[TemplateKey{req.Agent.Role, op}]
	if len(candidates) == 0 {
		return action.Action{}, simerr.Generation(string(action.TierTemplate), "no template for %s/%s", req.Agent.Role, op)
	}
	targets := t.cat.ForRole(req.Agent.Role, t.cat.Clearance(req.Agent.Role), op)
	if len(targets) == 0 {
		return action.Action{}, noTarget(action.TierTemplate, req, op)
	}

	target := targets[rng.Intn(len(targets))]
	c := candidates[rng.Intn(len(candidates))]
	lo := rng.Intn(900) + 1
	data := templateData{
		Table: target.Name,
		Agent: req.Agent.ID,
		Grant: grantable[rng.Intn(len(grantable))],
		ID:    rng.Intn(1000) + 1,
		Lo:    lo,
		Hi:    lo + 50,
		Limit: 500,
		Now:   req.Situation.Timestamp.Format(time.RFC3339),
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return action.Action{}, simerr.Generation(string(action.TierTemplate), "render %s: %v", c.tmpl.Name(), err)
	}

	a := base(req, action.TierTemplate)
	a.Target = target.Name
	a.Operation = op
	a.Complexity = c.complexity
	a.Sensitivity = target.Sensitivity
	a.Payload = buf.String()
	return a, nil
}
