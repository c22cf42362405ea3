package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/calendar"
	"github.com/rmax-ai/auditsim/pkg/catalog"
	"github.com/rmax-ai/auditsim/pkg/generator"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/scenario"
	"github.com/rmax-ai/auditsim/pkg/simerr"
	"github.com/rmax-ai/auditsim/pkg/simulation"
	"github.com/rmax-ai/auditsim/pkg/sink"
	"github.com/rmax-ai/auditsim/pkg/situation"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

// Calendar builds the business calendar.
func (c *Config) Calendar() (*calendar.Calendar, error) {
	loc, err := c.LoadLocation()
	if err != nil {
		return nil, err
	}
	cal, err := calendar.New(c.BusinessHours, c.LunchWindow, c.HolidayCalendar, loc)
	if err != nil {
		return nil, simerr.Configuration("config.Calendar", "%v", err)
	}
	return cal, nil
}

// Model returns the transition model from TransitionsFile, or the built-in
// tables when no file is set.
func (c *Config) Model() (*behavior.Model, error) {
	if c.TransitionsFile == "" {
		return behavior.DefaultModel(), nil
	}
	return behavior.LoadModel(c.TransitionsFile)
}

// Registry returns the built-in scenarios, narrowed to Scenarios when set.
func (c *Config) Registry() (*scenario.Registry, error) {
	reg := scenario.Builtin()
	if len(c.Scenarios) == 0 {
		return reg, nil
	}
	return reg.Filter(c.Scenarios)
}

// PopulationSpec describes the population to build.
func (c *Config) PopulationSpec() (agent.PopulationSpec, error) {
	loc, err := c.LoadLocation()
	if err != nil {
		return agent.PopulationSpec{}, err
	}
	mix, err := c.Roles()
	if err != nil {
		return agent.PopulationSpec{}, err
	}
	return agent.PopulationSpec{
		Size:             c.PopulationSize,
		RoleMix:          mix,
		Hours:            c.BusinessHours,
		OvertimeFraction: c.OvertimeFraction,
		Overtime:         c.OvertimeWindow,
		Location:         loc,
	}, nil
}

// Population builds the agents. The same seed always yields the same
// population.
func (c *Config) Population() ([]*agent.Agent, error) {
	spec, err := c.PopulationSpec()
	if err != nil {
		return nil, err
	}
	pop, err := agent.BuildPopulation(spec, rand.New(rand.NewSource(c.RNGSeed)))
	if err != nil {
		return nil, simerr.Configuration("config.Population", "%v", err)
	}
	return pop, nil
}

func (c *Config) readOnlyRoles() []behavior.Role {
	out := make([]behavior.Role, 0, len(c.Sink.ReadOnlyRoles))
	for _, name := range c.Sink.ReadOnlyRoles {
		if r, err := behavior.ParseRole(name); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// OpenSink builds the configured sink.
func (c *Config) OpenSink(cat *catalog.Catalog) (sink.Sink, error) {
	switch c.Sink.Kind {
	case SinkMock, "":
		return sink.NewMockSink(sink.MockConfig{
			Seed:          c.RNGSeed,
			FailFirst:     c.Sink.FailFirst,
			ErrorRate:     c.Sink.ErrorRate,
			Latency:       c.Sink.Latency,
			LatencySpread: c.Sink.LatencySpread,
			ReadOnlyRoles: c.readOnlyRoles(),
		}), nil
	case SinkSQLite:
		s, err := sink.NewSQLiteSink(c.Sink.DSN, cat, sink.SQLiteOptions{
			ReadOnlyRoles: c.readOnlyRoles(),
			SeedRows:      c.Sink.SeedRows,
			Timeout:       c.Sink.Timeout,
		})
		if err != nil {
			return nil, simerr.Configuration("config.OpenSink", "%v", err)
		}
		return s, nil
	case SinkHTTP:
		return sink.NewHTTPSink(c.Sink.URL, c.Sink.Timeout), nil
	default:
		return nil, simerr.Configuration("config.OpenSink", "unknown sink kind %q", c.Sink.Kind)
	}
}

// OpenRecorder opens every configured telemetry destination. A non-nil mem
// also receives a copy of every record.
func (c *Config) OpenRecorder(mem *telemetry.Memory) (telemetry.Recorder, error) {
	var fan telemetry.Fanout
	if mem != nil {
		fan = append(fan, mem)
	}
	fail := func(err error) (telemetry.Recorder, error) {
		return nil, errors.Join(simerr.Configuration("config.OpenRecorder", "%v", err), fan.Close())
	}

	if p := c.Telemetry.JSONL; p != "" {
		j, err := telemetry.CreateJSONL(p)
		if err != nil {
			return fail(err)
		}
		fan = append(fan, j)
	}
	if p := c.Telemetry.SQLite; p != "" {
		s, err := telemetry.NewSQLiteRecorder(p)
		if err != nil {
			return fail(err)
		}
		fan = append(fan, s)
	}
	if addr := c.Telemetry.RedisAddr; addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		fan = append(fan, telemetry.NewRedisRecorder(client, c.Telemetry.RedisStream, c.Telemetry.RedisMaxLen))
	}
	return fan, nil
}

// Options maps the config onto scheduler options.
func (c *Config) Options() simulation.Options {
	backoff := c.Backoff
	return simulation.Options{
		Seed:             c.RNGSeed,
		Start:            c.StartTime,
		Speed:            c.SpeedMultiplier,
		Duration:         c.SimulatedDuration,
		Pacing:           simulation.Pacing(c.Pacing),
		StaggerStart:     c.StaggerStart,
		GracePeriod:      c.GracePeriod,
		MaxRetries:       c.MaxRetries,
		Backoff:          &backoff,
		OffShiftSlowdown: c.OffShiftSlowdown,
		Invariants:       c.Invariants,
	}
}

// BuildOption tunes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	keepRecords bool
}

// WithRecordCopy keeps every record in Run.Memory. Memory grows with the
// run, so only callers that read the records back ask for it.
func WithRecordCopy() BuildOption {
	return func(o *buildOptions) { o.keepRecords = true }
}

// Run is a fully wired simulation, ready to start.
type Run struct {
	Scheduler  *simulation.Scheduler
	Population []*agent.Agent
	// Memory is nil unless requested with WithRecordCopy or needed for
	// the CSV export.
	Memory   *telemetry.Memory
	Recorder telemetry.Recorder
	Sink     sink.Sink
	Gate     *sink.Gate
}

// Close releases the sink and every recorder.
func (r *Run) Close() error {
	return errors.Join(sink.Close(r.Sink), r.Recorder.Close())
}

// Build wires every component described by the config. Failures are
// configuration errors; nothing is started.
func (c *Config) Build(logger *slog.Logger, opts ...BuildOption) (*Run, error) {
	logger = logging.OrDefault(logger)
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	cal, err := c.Calendar()
	if err != nil {
		return nil, err
	}
	model, err := c.Model()
	if err != nil {
		return nil, err
	}
	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}
	pop, err := c.Population()
	if err != nil {
		return nil, err
	}
	for _, a := range pop {
		if !model.Has(a.Role) {
			return nil, simerr.Configuration("config.Build", "transition model has no profile for role %s", a.Role)
		}
	}

	cat := catalog.Default()
	sk, err := c.OpenSink(cat)
	if err != nil {
		return nil, err
	}
	var mem *telemetry.Memory
	if bo.keepRecords || c.Telemetry.CSV != "" {
		mem = telemetry.NewMemory()
	}
	rec, err := c.OpenRecorder(mem)
	if err != nil {
		return nil, errors.Join(err, sink.Close(sk))
	}

	gate := sink.NewGate(c.MaxConcurrentSinkCalls, c.SinkRate)
	sched, err := simulation.New(simulation.Deps{
		Model:        model,
		Resolver:     situation.NewResolver(cal, cat),
		Generator:    generator.New(cat, generator.WithLogger(logger)),
		Orchestrator: scenario.NewOrchestrator(reg, c.ScenarioFraction, scenario.WithSeed(c.RNGSeed), scenario.WithLogger(logger)),
		Sink:         sk,
		Gate:         gate,
		Recorder:     rec,
		Logger:       logger,
	}, c.Options())
	if err != nil {
		return nil, errors.Join(err, sink.Close(sk), rec.Close())
	}

	if len(c.Unused) > 0 {
		logger.Warn("ignoring unknown config keys", "keys", c.Unused)
	}
	return &Run{
		Scheduler:  sched,
		Population: pop,
		Memory:     mem,
		Recorder:   rec,
		Sink:       sk,
		Gate:       gate,
	}, nil
}

// Summary is a one-line description used by the CLI.
func (c *Config) Summary() string {
	return fmt.Sprintf("%d agents, %s simulated at x%g from %s (%s pacing, seed %d)",
		c.PopulationSize, c.SimulatedDuration, c.SpeedMultiplier,
		c.StartTime.Format("2006-01-02 15:04 MST"), c.Pacing, c.RNGSeed)
}
