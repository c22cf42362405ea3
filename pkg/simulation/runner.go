// Package simulation runs one concurrent runtime per agent against the
// shared virtual clock and summarizes the run.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/clock"
	"github.com/rmax-ai/auditsim/pkg/generator"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/scenario"
	"github.com/rmax-ai/auditsim/pkg/simerr"
	"github.com/rmax-ai/auditsim/pkg/sink"
	"github.com/rmax-ai/auditsim/pkg/situation"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

// assignSalt separates the scenario-assignment stream from the population
// stream drawn from the same seed.
const assignSalt = 0x5ce7a510

// Deps are the components a Scheduler drives. Orchestrator and Recorder
// are optional.
type Deps struct {
	Model        *behavior.Model
	Resolver     *situation.Resolver
	Generator    *generator.Generator
	Orchestrator *scenario.Orchestrator
	Sink         sink.Sink
	Gate         *sink.Gate
	Recorder     telemetry.Recorder
	Logger       *slog.Logger
}

// Scheduler starts and supervises agent runtimes.
type Scheduler struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	clock    *clock.Clock
	runtimes []*runtime
	done     bool
}

// New validates deps and opts. Missing components are configuration errors.
func New(deps Deps, opts Options) (*Scheduler, error) {
	switch {
	case deps.Model == nil:
		return nil, simerr.Configuration("simulation.New", "transition model is required")
	case deps.Resolver == nil:
		return nil, simerr.Configuration("simulation.New", "context resolver is required")
	case deps.Generator == nil:
		return nil, simerr.Configuration("simulation.New", "action generator is required")
	case deps.Sink == nil:
		return nil, simerr.Configuration("simulation.New", "sink is required")
	case opts.Duration <= 0:
		return nil, simerr.Configuration("simulation.New", "simulated duration must be positive")
	case opts.Speed <= 0:
		return nil, simerr.Configuration("simulation.New", "speed multiplier must be positive")
	}
	if opts.Pacing == "" {
		opts.Pacing = PacingRealtime
	}
	if !opts.Pacing.Valid() {
		return nil, simerr.Configuration("simulation.New", "unknown pacing %q", opts.Pacing)
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2024, 1, 8, 9, 0, 0, 0, deps.Resolver.Calendar().Location())
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = sink.DefaultMaxRetries
	}
	if deps.Gate == nil {
		deps.Gate = sink.NewGate(10, 0)
	}
	if deps.Recorder == nil {
		deps.Recorder = telemetry.NewMemory()
	}
	return &Scheduler{
		deps:   deps,
		opts:   opts,
		logger: logging.OrDefault(deps.Logger).With("component", "scheduler"),
	}, nil
}

// RunID derives the run id from the seed, so equal seeds share an id.
func RunID(seed int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("auditsim/run/%d", seed))).String()
}

// Run starts one runtime per agent, waits for the deadline and drains. The
// report is always returned and always consistent; the error is non-nil
// only for invalid input or when runtimes had to be force-aborted.
func (s *Scheduler) Run(ctx context.Context, population []*agent.Agent) (*Report, error) {
	if len(population) == 0 {
		return nil, simerr.Configuration("simulation.Run", "empty population")
	}
	for _, a := range population {
		if !s.deps.Model.Has(a.Role) {
			return nil, simerr.Configuration("simulation.Run", "agent %s: no behavior profile for role %s", a.ID, a.Role)
		}
	}

	wallStart := time.Now()
	clk := clock.New(s.opts.Start, s.opts.Speed, s.opts.Duration)
	defer clk.Stop()

	// Assignment happens sequentially in population order so it is a pure
	// function of the seed.
	if s.deps.Orchestrator != nil {
		assignRng := rand.New(rand.NewSource(s.opts.Seed ^ assignSalt))
		for _, a := range population {
			s.deps.Orchestrator.TryAssign(a, assignRng)
		}
	}

	submitter := sink.NewSubmitter(s.deps.Sink, s.deps.Gate, s.opts.MaxRetries, s.deps.Logger)
	if s.opts.Backoff != nil {
		submitter.Backoff = s.opts.Backoff
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.opts.Pacing == PacingRealtime {
		var stop context.CancelFunc
		runCtx, stop = clk.Context(runCtx)
		defer stop()
	} else {
		submitter.Sleep = sink.NoSleep
	}

	runtimes := make([]*runtime, len(population))
	for i, a := range population {
		runtimes[i] = &runtime{
			agent:     a,
			rng:       rand.New(rand.NewSource(a.Seed)),
			model:     s.deps.Model,
			resolver:  s.deps.Resolver,
			gen:       s.deps.Generator,
			orch:      s.deps.Orchestrator,
			submitter: submitter,
			recorder:  s.deps.Recorder,
			clock:     clk,
			opts:      &s.opts,
			logger:    logging.OrDefault(s.deps.Logger).With("agent_id", a.ID, "role", a.Role),
			done:      make(chan struct{}),
		}
	}

	s.mu.Lock()
	s.clock = clk
	s.runtimes = runtimes
	s.done = false
	s.mu.Unlock()

	s.logger.Info("simulation starting",
		"run_id", RunID(s.opts.Seed),
		"agents", len(population),
		"pacing", s.opts.Pacing,
		"speed", s.opts.Speed,
		"duration", s.opts.Duration,
		"sink_capacity", s.deps.Gate.Capacity(),
	)

	var wg sync.WaitGroup
	for _, rt := range runtimes {
		wg.Add(1)
		go func(rt *runtime) {
			defer wg.Done()
			rt.run(runCtx)
		}(rt)
	}

	all := make(chan struct{})
	go func() {
		wg.Wait()
		close(all)
	}()

	stuck := s.drain(runCtx, all, runtimes)

	end := clk.End()
	if !clk.Now().After(end) && s.opts.Pacing == PacingRealtime {
		end = clk.Now()
	}
	for _, rt := range stuck {
		if s.deps.Orchestrator != nil {
			s.deps.Orchestrator.Abort(rt.agent.ID, end, "scheduling: runtime blocked past grace period")
		}
	}
	if s.deps.Orchestrator != nil {
		if n := s.deps.Orchestrator.AbortAll(end, "deadline reached"); n > 0 {
			s.logger.Info("scenarios aborted at deadline", "count", n)
		}
	}

	report := s.report(runtimes, stuck, clk, time.Since(wallStart))

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()

	s.logger.Info("simulation finished",
		"actions", report.Actions,
		"failed", report.Failed,
		"record_errors", report.RecordErrors,
		"aborted_agents", len(report.AbortedAgents),
		"success", report.Success,
	)

	if len(stuck) > 0 {
		ids := make([]string, len(stuck))
		for i, rt := range stuck {
			ids[i] = rt.agent.ID
		}
		return report, simerr.Scheduling("simulation.Run", "%d runtimes blocked past the grace period: %v", len(stuck), ids)
	}
	return report, nil
}

// drain waits for every runtime. Once the run context ends, runtimes get
// GracePeriod to finish their tick; the ones still running are returned.
func (s *Scheduler) drain(runCtx context.Context, all <-chan struct{}, runtimes []*runtime) []*runtime {
	select {
	case <-all:
		return nil
	case <-runCtx.Done():
	}

	grace := time.NewTimer(s.opts.GracePeriod)
	defer grace.Stop()
	select {
	case <-all:
		return nil
	case <-grace.C:
	}

	var stuck []*runtime
	for _, rt := range runtimes {
		if !rt.finished.Load() {
			stuck = append(stuck, rt)
			s.logger.Error("runtime force-aborted",
				"agent_id", rt.agent.ID,
				"error", errors.New("blocked past grace period"),
			)
		}
	}
	return stuck
}

func (s *Scheduler) report(runtimes, stuck []*runtime, clk *clock.Clock, wall time.Duration) *Report {
	aborted := make(map[*runtime]bool, len(stuck))
	for _, rt := range stuck {
		aborted[rt] = true
	}

	r := &Report{
		RunID:        RunID(s.opts.Seed),
		Seed:         s.opts.Seed,
		Pacing:       s.opts.Pacing,
		Start:        clk.Start(),
		End:          clk.End(),
		WallElapsed:  wall,
		Agents:       len(runtimes),
		TierUsage:    make(map[action.Tier]int64),
		ErrorKinds:   make(map[string]int64),
		PeakInFlight: s.deps.Gate.Peak(),
		SinkCapacity: s.deps.Gate.Capacity(),
		PerAgent:     make(map[string]AgentReport, len(runtimes)),
	}

	var last time.Time
	for _, rt := range runtimes {
		if aborted[rt] {
			r.AbortedAgents = append(r.AbortedAgents, rt.agent.ID)
			continue
		}
		// done is closed for every runtime that is not stuck.
		<-rt.done
		r.Finished++

		c := rt.agent.Counters()
		r.Actions += c.Actions
		r.Failed += c.Failures
		r.Retries += c.Retries
		r.GenerationErrors += c.GenerationErrors
		r.ScenarioActions += c.ScenarioActions
		r.RecordErrors += rt.stats.recordErrors
		for tier, n := range rt.stats.tiers {
			r.TierUsage[tier] += n
		}
		for kind, n := range rt.stats.errorKinds {
			r.ErrorKinds[kind] += n
		}
		if rt.stats.lastTick.After(last) {
			last = rt.stats.lastTick
		}
		r.PerAgent[rt.agent.ID] = AgentReport{
			Role:      string(rt.agent.Role),
			Expertise: rt.agent.Expertise.String(),
			Counters:  c,
			LastState: string(rt.agent.State()),
		}
	}
	r.Succeeded = r.Actions - r.Failed
	sort.Strings(r.AbortedAgents)
	if !last.IsZero() {
		r.SimulatedElapsed = last.Sub(r.Start)
	}
	if s.deps.Orchestrator != nil {
		r.Scenarios = s.deps.Orchestrator.Stats()
	}

	evaluateInvariants(r, s.opts.Invariants)
	if r.RecordErrors > 0 {
		r.Invariants = append(r.Invariants, InvariantResult{
			Metric:   MetricRecordErrors,
			Scope:    "global",
			Expected: "== 0",
			Actual:   strconv.FormatInt(r.RecordErrors, 10),
			Passed:   false,
		})
	}
	r.Success = len(r.AbortedAgents) == 0
	for _, inv := range r.Invariants {
		if !inv.Passed {
			r.Success = false
			break
		}
	}
	return r
}

// Progress snapshots a live run. It is safe to call from any goroutine.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	clk, runtimes, done := s.clock, s.runtimes, s.done
	s.mu.Unlock()

	p := Progress{Agents: len(runtimes), Done: done, ByRole: make(map[string]int64)}
	if clk == nil {
		return p
	}
	p.SimNow = clk.Now()
	p.Fraction = clk.Fraction()
	for _, rt := range runtimes {
		if !rt.finished.Load() {
			p.Running++
		}
		c := rt.agent.Counters()
		p.Actions += c.Actions
		p.Failures += c.Failures
		p.ByRole[string(rt.agent.Role)] += c.Actions
	}
	p.InFlight = s.deps.Gate.InFlight()
	if s.deps.Orchestrator != nil {
		p.Scenarios = s.deps.Orchestrator.Stats()
	}
	return p
}

// Options returns the effective options after defaults.
func (s *Scheduler) Options() Options { return s.opts }
