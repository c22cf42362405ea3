package generator

import (
	"math/rand"

	"github.com/rmax-ai/auditsim/pkg/action"
)

// Fallback is the last tier: a read-only health probe that is valid for
// every agent in every situation.
type Fallback struct{}

func (Fallback) Tier() action.Tier { return action.TierFallback }

func (Fallback) Generate(req Request, _ *rand.Rand) (action.Action, error) {
	a := base(req, action.TierFallback)
	a.Target = ProbeTarget
	a.Operation = action.OpProbe
	a.Complexity = action.Simple
	a.Sensitivity = action.Public
	a.Payload = ProbeStatement
	return a, nil
}
