package generator

import (
	"math/rand"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/catalog"
	"github.com/rmax-ai/auditsim/pkg/simerr"
)

// Complexity thresholds on the [0,1] score.
const (
	simpleBelow       = 0.4
	intermediateBelow = 0.75

	// offHoursBias lowers the score outside business hours and on holidays.
	offHoursBias = 0.15
)

// ContextAware composes actions from the situation's sensitivity, the
// agent's expertise and the role's catalog access.
type ContextAware struct {
	cat *catalog.Catalog
}

// NewContextAware returns the first-tier strategy.
func NewContextAware(cat *catalog.Catalog) *ContextAware {
	return &ContextAware{cat: cat}
}

func (c *ContextAware) Tier() action.Tier { return action.TierContext }

// Complexity grades a request: expertise weighs 0.6, jitter 0.4.
func Complexity(req Request, rng *rand.Rand) action.Complexity {
	sit := req.Situation
	score := sit.Expertise.Weight()*0.6 + rng.Float64()*0.4
	if sit.OffHours() || sit.Holiday {
		score -= offHoursBias
	}
	switch {
	case score < simpleBelow:
		return action.Simple
	case score < intermediateBelow:
		return action.Intermediate
	default:
		return action.Complex
	}
}

func (c *ContextAware) Generate(req Request, rng *rand.Rand) (action.Action, error) {
	op, err := opFor(req.State, rng)
	if err != nil {
		return action.Action{}, simerr.Generation(string(action.TierContext), "%v", err)
	}

	targets := c.cat.ForRole(req.Agent.Role, req.Situation.Sensitivity, op)
	if len(targets) == 0 {
		return action.Action{}, noTarget(action.TierContext, req, op)
	}

	complexity := action.Simple
	if req.State != behavior.StateIdle {
		complexity = Complexity(req, rng)
	}
	target := targets[rng.Intn(len(targets))]

	a := base(req, action.TierContext)
	a.Target = target.Name
	a.Operation = op
	a.Complexity = complexity
	a.Sensitivity = target.Sensitivity
	a.Payload = newBuilder(rng, req.Situation.Timestamp).build(target, op, complexity, req.Agent.ID)
	return a, nil
}
