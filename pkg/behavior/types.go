package behavior

import (
	"fmt"
	"strings"
)

// State is a node of an agent's behavior state machine.
type State string

const (
	StateIdle    State = "idle"
	StateQuery   State = "query"
	StateUpdate  State = "update"
	StateExport  State = "export"
	StateAdmin   State = "admin"
	StateBreak   State = "break"
	StateOffline State = "offline"
)

var allStates = []State{
	StateIdle,
	StateQuery,
	StateUpdate,
	StateExport,
	StateAdmin,
	StateBreak,
	StateOffline,
}

// AllStates returns every known state in a stable order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// Passive reports whether the state emits no action (the agent is away).
func (s State) Passive() bool {
	return s == StateBreak || s == StateOffline
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range allStates {
		if s == known {
			return true
		}
	}
	return false
}

// Role is the closed set of simulated departments. Each role carries its own
// transition table and catalog access; adding a role means adding a constant
// and its data.
type Role string

const (
	RoleAnalyst  Role = "analyst"
	RoleEngineer Role = "engineer"
	RoleFinance  Role = "finance"
	RoleHR       Role = "hr"
	RoleSupport  Role = "support"
	RoleDBA      Role = "dba"
	RoleService  Role = "service"
)

var allRoles = []Role{
	RoleAnalyst,
	RoleEngineer,
	RoleFinance,
	RoleHR,
	RoleSupport,
	RoleDBA,
	RoleService,
}

var departments = map[Role]string{
	RoleAnalyst:  "analytics",
	RoleEngineer: "engineering",
	RoleFinance:  "finance",
	RoleHR:       "people",
	RoleSupport:  "customer_success",
	RoleDBA:      "platform",
	RoleService:  "automation",
}

// AllRoles returns every role in a stable order.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// ParseRole normalizes s and returns the matching role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := departments[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Department returns the department tag for the role.
func (r Role) Department() string {
	return departments[r]
}

// Human reports whether the role is staffed by people (as opposed to a
// scheduled service account).
func (r Role) Human() bool {
	return r != RoleService
}
