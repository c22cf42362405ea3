package catalog

import (
	"strings"
	"testing"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
)

func TestDefault_EveryRoleHasTargets(t *testing.T) {
	c := Default()
	for _, role := range behavior.AllRoles() {
		if len(c.Access(role)) == 0 {
			t.Errorf("role %s has no entities", role)
		}
		if len(c.ForRole(role, action.Restricted, action.OpSelect)) == 0 {
			t.Errorf("role %s cannot select anything", role)
		}
	}
	if _, ok := c.Lookup("system_health"); !ok {
		t.Fatal("system_health missing")
	}
}

func TestForRole_Filters(t *testing.T) {
	c := Default()

	tests := []struct {
		name  string
		role  behavior.Role
		limit action.Sensitivity
		op    action.Operation
		want  []string
	}{
		{"hr internal select", behavior.RoleHR, action.Internal, action.OpSelect, []string{"tickets"}},
		{"hr restricted select", behavior.RoleHR, action.Restricted, action.OpSelect, []string{"employees", "tickets", "salaries", "payroll"}},
		{"engineer grant", behavior.RoleEngineer, action.Restricted, action.OpGrant, []string{"access_grants"}},
		{"support public", behavior.RoleSupport, action.Public, action.OpSelect, []string{"products"}},
		{"analyst grant", behavior.RoleAnalyst, action.Restricted, action.OpGrant, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ForRole(tt.role, tt.limit, tt.op)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entities, want %v", len(got), tt.want)
			}
			for i, e := range got {
				if e.Name != tt.want[i] {
					t.Errorf("entity %d = %s; want %s", i, e.Name, tt.want[i])
				}
			}
		})
	}
}

func TestNew_RejectsUnknownEntity(t *testing.T) {
	_, err := New(DefaultEntities(), map[behavior.Role][]string{behavior.RoleHR: {"nope"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("New = %v; want unknown entity error", err)
	}
}

func TestClearanceAndSchema(t *testing.T) {
	c := Default()
	if c.Clearance(behavior.RoleSupport) != action.Confidential {
		t.Error("support clearance")
	}
	if c.Clearance("pilot") != action.Public {
		t.Error("unknown role should be public-only")
	}

	schema := c.Schema()
	if len(schema) != len(DefaultEntities()) {
		t.Fatalf("schema has %d statements", len(schema))
	}
	if !strings.HasPrefix(schema[0], "CREATE TABLE IF NOT EXISTS access_grants (id INTEGER PRIMARY KEY") {
		t.Errorf("unexpected first statement: %s", schema[0])
	}
}
