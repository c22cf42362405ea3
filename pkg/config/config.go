// Package config loads simulation settings from YAML, JSON or TOML files
// and turns them into the components a run needs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/calendar"
	"github.com/rmax-ai/auditsim/pkg/simerr"
	"github.com/rmax-ai/auditsim/pkg/simulation"
	"github.com/rmax-ai/auditsim/pkg/sink"
)

// RequiredKeys must be present in every configuration file.
var RequiredKeys = []string{"population_size", "speed_multiplier", "simulated_duration"}

// Sink kinds.
const (
	SinkMock   = "mock"
	SinkSQLite = "sqlite"
	SinkHTTP   = "http"
)

// Config is the full set of run settings. Keys are snake_case in every
// file format.
type Config struct {
	PopulationSize    int                `mapstructure:"population_size"`
	RoleMix           map[string]float64 `mapstructure:"role_mix"`
	SpeedMultiplier   float64            `mapstructure:"speed_multiplier"`
	SimulatedDuration time.Duration      `mapstructure:"simulated_duration"`
	StartTime         time.Time          `mapstructure:"start_time"`
	ScenarioFraction  float64            `mapstructure:"scenario_fraction"`
	Scenarios         []string           `mapstructure:"scenarios"`
	RNGSeed           int64              `mapstructure:"rng_seed"`
	Pacing            string             `mapstructure:"pacing"`

	MaxConcurrentSinkCalls int64                   `mapstructure:"max_concurrent_sink_calls"`
	SinkRate               float64                 `mapstructure:"sink_rate"`
	MaxRetries             int                     `mapstructure:"max_retries"`
	Backoff                sink.ExponentialBackoff `mapstructure:"backoff"`

	BusinessHours   calendar.TimeWindow `mapstructure:"business_hours"`
	LunchWindow     calendar.TimeWindow `mapstructure:"lunch_window"`
	HolidayCalendar map[string]string   `mapstructure:"holiday_calendar"`
	Location        string              `mapstructure:"location"`

	OvertimeFraction float64             `mapstructure:"overtime_fraction"`
	OvertimeWindow   calendar.TimeWindow `mapstructure:"overtime_window"`
	OffShiftSlowdown float64             `mapstructure:"off_shift_slowdown"`
	StaggerStart     time.Duration       `mapstructure:"stagger_start"`
	GracePeriod      time.Duration       `mapstructure:"grace_period"`

	TransitionsFile string `mapstructure:"transitions_file"`

	Sink       SinkConfig             `mapstructure:"sink"`
	Telemetry  TelemetryConfig        `mapstructure:"telemetry"`
	Invariants []simulation.Invariant `mapstructure:"invariants"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Unused lists keys that were present in the file but not recognized.
	Unused []string `mapstructure:"-"`
}

// SinkConfig selects and tunes the sink actions are submitted to.
type SinkConfig struct {
	Kind          string        `mapstructure:"kind"`
	DSN           string        `mapstructure:"dsn"`
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SeedRows      int           `mapstructure:"seed_rows"`
	FailFirst     int           `mapstructure:"fail_first"`
	ErrorRate     float64       `mapstructure:"error_rate"`
	Latency       time.Duration `mapstructure:"latency"`
	LatencySpread time.Duration `mapstructure:"latency_spread"`
	ReadOnlyRoles []string      `mapstructure:"read_only_roles"`
}

// TelemetryConfig lists where records go. Every configured destination
// receives every record.
type TelemetryConfig struct {
	JSONL       string `mapstructure:"jsonl"`
	SQLite      string `mapstructure:"sqlite"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisStream string `mapstructure:"redis_stream"`
	RedisMaxLen int64  `mapstructure:"redis_max_len"`
	CSV         string `mapstructure:"csv"`
}

// Default returns a Config with every optional setting filled in.
func Default() Config {
	return Config{
		StartTime:              time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC),
		ScenarioFraction:       0.05,
		Pacing:                 string(simulation.PacingRealtime),
		MaxConcurrentSinkCalls: 10,
		MaxRetries:             sink.DefaultMaxRetries,
		Backoff:                *sink.DefaultBackoff(),
		BusinessHours:          calendar.DefaultBusinessHours(),
		LunchWindow:            calendar.DefaultLunch(),
		HolidayCalendar:        calendar.DefaultHolidays(),
		Location:               "UTC",
		OvertimeFraction:       0.1,
		OvertimeWindow:         agent.DefaultOvertime(),
		OffShiftSlowdown:       4,
		StaggerStart:           5 * time.Minute,
		GracePeriod:            simulation.DefaultGracePeriod,
		Sink: SinkConfig{
			Kind:          SinkMock,
			Latency:       5 * time.Millisecond,
			LatencySpread: 40 * time.Millisecond,
			SeedRows:      25,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads path, checks the required keys, decodes over Default and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Configuration("config.Load", "read %s: %v", path, err)
	}
	raw, err := parse(filepath.Ext(path), data)
	if err != nil {
		return nil, simerr.Configuration("config.Load", "parse %s: %v", path, err)
	}
	cfg, err := FromMap(raw)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(ext string, data []byte) (map[string]any, error) {
	raw := make(map[string]any)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return raw, nil
}

// FromMap builds a Config from already-parsed settings.
func FromMap(raw map[string]any) (*Config, error) {
	var missing []string
	for _, k := range RequiredKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, simerr.Configuration("config.Load", "missing required keys: %s", strings.Join(missing, ", "))
	}

	cfg := Default()
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
		// Lists and maps in the file replace the defaults instead of merging.
		ZeroFields: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDuration,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, simerr.Configuration("config.Load", "%v", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, simerr.Configuration("config.Load", "decode: %v", err)
	}
	cfg.Unused = md.Unused
	sort.Strings(cfg.Unused)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDuration reads bare numbers as seconds.
func secondsToDuration(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return simerr.Configuration("config.Validate", format, args...)
	}

	switch {
	case c.PopulationSize <= 0:
		return fail("population_size must be positive, got %d", c.PopulationSize)
	case c.SpeedMultiplier <= 0:
		return fail("speed_multiplier must be positive, got %v", c.SpeedMultiplier)
	case c.SimulatedDuration <= 0:
		return fail("simulated_duration must be positive, got %s", c.SimulatedDuration)
	case c.ScenarioFraction < 0 || c.ScenarioFraction > 1:
		return fail("scenario_fraction must be within [0, 1], got %v", c.ScenarioFraction)
	case c.OvertimeFraction < 0 || c.OvertimeFraction > 1:
		return fail("overtime_fraction must be within [0, 1], got %v", c.OvertimeFraction)
	case c.MaxConcurrentSinkCalls <= 0:
		return fail("max_concurrent_sink_calls must be positive, got %d", c.MaxConcurrentSinkCalls)
	case c.SinkRate < 0:
		return fail("sink_rate must not be negative")
	case c.MaxRetries < 0:
		return fail("max_retries must not be negative")
	case c.StaggerStart < 0 || c.GracePeriod < 0:
		return fail("stagger_start and grace_period must not be negative")
	case c.Backoff.Base < 0 || c.Backoff.Max < 0 || c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1:
		return fail("invalid backoff %+v", c.Backoff)
	}

	if !simulation.Pacing(c.Pacing).Valid() {
		return fail("unknown pacing %q", c.Pacing)
	}
	if _, err := c.LoadLocation(); err != nil {
		return err
	}
	if _, err := c.Roles(); err != nil {
		return err
	}
	for name, tw := range map[string]calendar.TimeWindow{
		"business_hours":  c.BusinessHours,
		"lunch_window":    c.LunchWindow,
		"overtime_window": c.OvertimeWindow,
	} {
		if err := tw.Validate(); err != nil {
			return fail("%s: %v", name, err)
		}
	}

	switch c.Sink.Kind {
	case SinkMock:
		if c.Sink.ErrorRate < 0 || c.Sink.ErrorRate > 1 {
			return fail("sink.error_rate must be within [0, 1], got %v", c.Sink.ErrorRate)
		}
	case SinkSQLite:
	case SinkHTTP:
		if c.Sink.URL == "" {
			return fail("sink.url is required for the http sink")
		}
	default:
		return fail("unknown sink kind %q", c.Sink.Kind)
	}
	for _, r := range c.Sink.ReadOnlyRoles {
		if _, err := behavior.ParseRole(r); err != nil {
			return fail("sink.read_only_roles: %v", err)
		}
	}

	for i, inv := range c.Invariants {
		if err := simulation.ValidInvariant(inv); err != nil {
			return fail("invariants[%d]: %v", i, err)
		}
	}
	return nil
}

// LoadLocation resolves the configured IANA zone name.
func (c *Config) LoadLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, simerr.Configuration("config.Location", "location %q: %v", c.Location, err)
	}
	return loc, nil
}

// Roles parses the role mix. An empty mix yields nil, which selects the
// default mix.
func (c *Config) Roles() (map[behavior.Role]float64, error) {
	if len(c.RoleMix) == 0 {
		return nil, nil
	}
	out := make(map[behavior.Role]float64, len(c.RoleMix))
	var total float64
	for name, w := range c.RoleMix {
		r, err := behavior.ParseRole(name)
		if err != nil {
			return nil, simerr.Configuration("config.Roles", "role_mix: %v", err)
		}
		if w < 0 {
			return nil, simerr.Configuration("config.Roles", "role_mix: negative weight %v for %s", w, name)
		}
		out[r] = w
		total += w
	}
	if total == 0 {
		return nil, simerr.Configuration("config.Roles", "role_mix weights sum to zero")
	}
	return out, nil
}
