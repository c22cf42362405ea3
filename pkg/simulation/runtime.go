package simulation

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/clock"
	"github.com/rmax-ai/auditsim/pkg/generator"
	"github.com/rmax-ai/auditsim/pkg/metrics"
	"github.com/rmax-ai/auditsim/pkg/scenario"
	"github.com/rmax-ai/auditsim/pkg/simerr"
	"github.com/rmax-ai/auditsim/pkg/sink"
	"github.com/rmax-ai/auditsim/pkg/situation"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

// runtimeStats is written only by the owning runtime and read after done
// is closed.
type runtimeStats struct {
	tiers        map[action.Tier]int64
	errorKinds   map[string]int64
	recordErrors int64
	lastTick     time.Time
}

// runtime drives one agent. Everything except the orchestrator, the gate
// and the recorder is owned by the runtime's goroutine.
type runtime struct {
	agent     *agent.Agent
	rng       *rand.Rand
	model     *behavior.Model
	resolver  *situation.Resolver
	gen       *generator.Generator
	orch      *scenario.Orchestrator
	submitter *sink.Submitter
	recorder  telemetry.Recorder
	clock     *clock.Clock
	opts      *Options
	logger    *slog.Logger

	seq      uint64
	cursor   time.Time
	stats    runtimeStats
	finished atomic.Bool
	done     chan struct{}
}

func (r *runtime) run(ctx context.Context) {
	defer close(r.done)
	defer r.finished.Store(true)
	metrics.AgentsRunning.Inc()
	defer metrics.AgentsRunning.Dec()

	r.stats.tiers = make(map[action.Tier]int64)
	r.stats.errorKinds = make(map[string]int64)

	end := r.clock.End()
	r.cursor = r.clock.Start()
	if r.opts.StaggerStart > 0 {
		r.cursor = r.cursor.Add(time.Duration(r.rng.Int63n(int64(r.opts.StaggerStart))))
	}
	state := r.model.InitialState(r.agent.Role)
	r.agent.SetState(state)

	for {
		if ctx.Err() != nil {
			return
		}
		if r.opts.Pacing == PacingRealtime && r.clock.Remaining() == 0 {
			return
		}

		next := r.cursor.Add(r.wait(state))
		if !next.Before(end) {
			return
		}
		if r.opts.Pacing == PacingRealtime {
			if err := r.clock.SleepUntil(ctx, next); err != nil {
				return
			}
		}
		r.cursor = next

		s, err := r.model.NextState(r.agent.Role, state, r.rng)
		if err != nil {
			r.generationFault(err)
			continue
		}
		state = s
		r.agent.SetState(state)
		r.tick(ctx, state)
	}
}

// wait samples the dwell time in state, stretched while off shift.
func (r *runtime) wait(state behavior.State) time.Duration {
	d, err := r.model.WaitTime(r.agent.Role, state, r.cursor, r.rng)
	if err != nil {
		r.generationFault(err)
		d = behavior.MinWait
	}
	if r.opts.OffShiftSlowdown > 1 {
		onShift := r.agent.OnShift(r.cursor, r.resolver.Calendar()) || r.agent.InOvertime(r.cursor)
		if !onShift {
			d = time.Duration(float64(d) * r.opts.OffShiftSlowdown)
		}
	}
	return d
}

// tick produces, submits and records one action.
func (r *runtime) tick(ctx context.Context, state behavior.State) {
	r.seq++
	sit := r.resolver.Resolve(r.agent, state, r.cursor)

	act, scripted, err := r.produce(sit)
	if err != nil {
		r.generationFault(err)
		return
	}

	out := r.submitter.Submit(ctx, act)
	if scripted {
		if !out.Success && (ctx.Err() != nil || out.ErrorKind == action.ErrCancelled) {
			// A stage cut off by the deadline never counts as satisfied.
			r.orch.Abort(r.agent.ID, r.cursor, "deadline reached")
		} else {
			r.orch.Complete(r.agent.ID, r.cursor, out)
		}
	}

	// Records are written even after cancellation. An action only counts
	// once its record exists, so report counts never exceed the records.
	if err := r.recorder.Record(context.WithoutCancel(ctx), telemetry.NewRecord(act, out)); err != nil {
		r.stats.recordErrors++
		metrics.RecordErrorsTotal.WithLabelValues("runtime").Inc()
		r.logger.Warn("failed to record action", "action_id", act.ID, "error", err)
		return
	}

	r.agent.RecordOutcome(out, scripted)
	r.stats.tiers[act.Tier]++
	r.stats.lastTick = r.cursor
	if !out.Success {
		r.stats.errorKinds[out.Label()]++
	}
	metrics.ActionsTotal.WithLabelValues(string(act.Role), string(act.Operation), out.Label()).Inc()
	metrics.VirtualTimeSeconds.Set(float64(r.cursor.Unix()))
}

// produce asks the agent's scenario first, then the generator. A panic is
// converted into a generation error so one agent's fault never ends the run.
func (r *runtime) produce(sit situation.Situation) (a action.Action, scripted bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = simerr.Generation("runtime.tick", "panic: %v", p)
		}
	}()

	if r.orch != nil && r.orch.Holds(r.agent.ID) {
		step := r.orch.Advance(r.agent, sit, r.seq)
		switch step.Kind {
		case scenario.StepAct:
			r.gen.Count(action.TierScenario)
			return step.Action, true, nil
		case scenario.StepDone:
			r.orch.Release(r.agent.ID, sit.Timestamp)
			r.logger.Debug("scenario released", "instance_id", step.Instance.ID, "status", step.Instance.Status)
		}
	}

	a = r.gen.Generate(generator.Request{
		Agent:     r.agent,
		State:     sit.State,
		Situation: sit,
		Seq:       r.seq,
	}, r.rng)
	if a.Payload == "" {
		return a, false, simerr.Generation("runtime.tick", "empty payload for %s", a.ID)
	}
	return a, false, nil
}

func (r *runtime) generationFault(err error) {
	r.agent.RecordGenerationError()
	metrics.GenerationErrorsTotal.Inc()
	r.logger.Error("tick skipped", "error", err, "sim_time", r.cursor)
}
