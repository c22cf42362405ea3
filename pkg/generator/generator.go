// Package generator turns an agent, a state and a situation into a concrete
// action through a chain of strategies. The last strategy in the chain
// cannot fail, so Generate always returns an action.
package generator

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/catalog"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/metrics"
	"github.com/rmax-ai/auditsim/pkg/simerr"
	"github.com/rmax-ai/auditsim/pkg/situation"
)

// Request is everything a strategy may use to build an action.
type Request struct {
	Agent     *agent.Agent
	State     behavior.State
	Situation situation.Situation
	Seq       uint64
}

// Strategy is one tier of the generation chain. A strategy that cannot
// produce an action returns a generation error.
type Strategy interface {
	Tier() action.Tier
	Generate(req Request, rng *rand.Rand) (action.Action, error)
}

// Generator runs strategies in order until one succeeds, then falls back
// to a read-only probe.
type Generator struct {
	tiers    []Strategy
	fallback Fallback
	usage    map[action.Tier]*atomic.Int64
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger used for tier failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithStrategies replaces the tiers tried before the fallback.
func WithStrategies(s ...Strategy) Option {
	return func(g *Generator) { g.tiers = s }
}

// New builds the default chain: context-aware, then templates, then the
// probe fallback.
func New(cat *catalog.Catalog, opts ...Option) *Generator {
	g := &Generator{
		tiers: []Strategy{
			NewContextAware(cat),
			NewTemplates(cat, DefaultTemplates()),
		},
		usage: map[action.Tier]*atomic.Int64{
			action.TierContext:  {},
			action.TierTemplate: {},
			action.TierFallback: {},
			action.TierScenario: {},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrDefault(g.logger).With("component", "generator")
	return g
}

// Generate returns an action for req. It never fails and never panics.
func (g *Generator) Generate(req Request, rng *rand.Rand) action.Action {
	for _, s := range g.tiers {
		a, err := try(s, req, rng)
		if err == nil {
			g.Count(a.Tier)
			return a
		}
		metrics.GenerationTierFailuresTotal.WithLabelValues(string(s.Tier())).Inc()
		g.logger.Debug("tier failed", "tier", s.Tier(), "agent_id", req.Agent.ID, "state", req.State, "error", err)
	}

	a, _ := g.fallback.Generate(req, rng)
	g.Count(action.TierFallback)
	return a
}

func try(s Strategy, req Request, rng *rand.Rand) (a action.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = simerr.Generation(string(s.Tier()), "panic: %v", r)
		}
	}()
	return s.Generate(req, rng)
}

// Count records that tier produced an action. Scenario-driven actions are
// counted here by the runtime.
func (g *Generator) Count(tier action.Tier) {
	c, ok := g.usage[tier]
	if !ok {
		return
	}
	c.Add(1)
	metrics.GenerationTierTotal.WithLabelValues(string(tier)).Inc()
}

// Usage snapshots how many actions each tier produced.
func (g *Generator) Usage() map[action.Tier]int64 {
	out := make(map[action.Tier]int64, len(g.usage))
	for t, c := range g.usage {
		out[t] = c.Load()
	}
	return out
}

// base fills the fields every strategy sets the same way.
func base(req Request, tier action.Tier) action.Action {
	a := req.Agent
	return action.Action{
		ID:         action.FormatID(a.ID, req.Seq),
		Seq:        req.Seq,
		AgentID:    a.ID,
		Role:       a.Role,
		Department: a.Department,
		State:      req.State,
		Tier:       tier,
		SimTime:    req.Situation.Timestamp,
		Stage:      -1,
	}
}

func noTarget(tier action.Tier, req Request, op action.Operation) error {
	return simerr.Generation(string(tier), "no %s target for role %s at sensitivity %s",
		op, req.Agent.Role, req.Situation.Sensitivity)
}

// opFor maps a behavior state to the operation it performs.
func opFor(state behavior.State, rng *rand.Rand) (action.Operation, error) {
	switch state {
	case behavior.StateIdle, behavior.StateQuery:
		return action.OpSelect, nil
	case behavior.StateUpdate:
		switch u := rng.Float64(); {
		case u < 0.6:
			return action.OpUpdate, nil
		case u < 0.9:
			return action.OpInsert, nil
		default:
			return action.OpDelete, nil
		}
	case behavior.StateExport:
		return action.OpExport, nil
	case behavior.StateAdmin:
		if rng.Float64() < 0.5 {
			return action.OpGrant, nil
		}
		return action.OpUpdate, nil
	default:
		return "", fmt.Errorf("state %s performs no operation", state)
	}
}
