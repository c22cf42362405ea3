// Package action defines the unit of work agents submit to a sink and the
// outcome the sink reports back.
package action

import (
	"fmt"
	"strings"
	"time"

	"github.com/rmax-ai/auditsim/pkg/behavior"
)

// Operation is the kind of access an action performs.
type Operation string

const (
	OpSelect Operation = "select"
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpExport Operation = "export"
	OpGrant  Operation = "grant"
	OpProbe  Operation = "probe"
)

// ReadOnly reports whether the operation never modifies data.
func (o Operation) ReadOnly() bool {
	return o == OpSelect || o == OpExport || o == OpProbe
}

// Complexity grades how elaborate a generated payload is.
type Complexity string

const (
	Simple       Complexity = "simple"
	Intermediate Complexity = "intermediate"
	Complex      Complexity = "complex"
)

// Tier names the generation path that produced an action.
type Tier string

const (
	TierContext  Tier = "context"
	TierTemplate Tier = "template"
	TierFallback Tier = "fallback"
	TierScenario Tier = "scenario"
)

// Sensitivity is an ordered data classification.
type Sensitivity int

const (
	Public Sensitivity = iota
	Internal
	Confidential
	Restricted
)

var sensitivityNames = [...]string{"public", "internal", "confidential", "restricted"}

func (s Sensitivity) String() string {
	if s < Public || s > Restricted {
		return fmt.Sprintf("sensitivity(%d)", int(s))
	}
	return sensitivityNames[s]
}

// ParseSensitivity maps a name to its Sensitivity.
func ParseSensitivity(s string) (Sensitivity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range sensitivityNames {
		if n == name {
			return Sensitivity(i), nil
		}
	}
	return Public, fmt.Errorf("unknown sensitivity %q", s)
}

func (s Sensitivity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Sensitivity) UnmarshalText(b []byte) error {
	v, err := ParseSensitivity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MinSensitivity returns the lower of a and b.
func MinSensitivity(a, b Sensitivity) Sensitivity {
	if a < b {
		return a
	}
	return b
}

// Action is a resolved, immutable unit of work. Stage is -1 unless the
// action belongs to a scenario instance.
type Action struct {
	ID          string
	Seq         uint64
	AgentID     string
	Role        behavior.Role
	Department  string
	State       behavior.State
	Target      string
	Operation   Operation
	Payload     string
	Complexity  Complexity
	Tier        Tier
	Sensitivity Sensitivity
	SimTime     time.Time

	ScenarioID   string
	ScenarioName string
	Stage        int
}

// ScenarioDriven reports whether the action was produced by a scenario stage.
func (a Action) ScenarioDriven() bool {
	return a.ScenarioID != ""
}

// FormatID builds the per-agent sequential action id.
func FormatID(agentID string, seq uint64) string {
	return fmt.Sprintf("%s-%06d", agentID, seq)
}
