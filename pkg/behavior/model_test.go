package behavior

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rmax-ai/auditsim/pkg/simerr"
)

func TestDefaultModel_RowsNormalized(t *testing.T) {
	m := DefaultModel()

	if got := len(m.Roles()); got != len(AllRoles()) {
		t.Fatalf("default model covers %d roles; want %d", got, len(AllRoles()))
	}
	for _, role := range m.Roles() {
		for _, state := range m.States(role) {
			row, ok := m.Row(role, state)
			if !ok {
				t.Fatalf("%s/%s: row missing", role, state)
			}
			var sum float64
			for _, e := range row {
				sum += e.Weight
			}
			if math.Abs(sum-1) > Epsilon {
				t.Errorf("%s/%s: weights sum to %v", role, state, sum)
			}
		}
	}
}

func TestNewModel_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		spec ProfileSpec
		want string
	}{
		{
			name: "not normalized",
			spec: ProfileSpec{Role: RoleAnalyst, Transitions: map[State]map[State]float64{
				StateIdle: {StateIdle: 0.5, StateQuery: 0.4},
			}},
			want: "weights sum",
		},
		{
			name: "negative weight",
			spec: ProfileSpec{Role: RoleAnalyst, Transitions: map[State]map[State]float64{
				StateIdle: {StateIdle: 1.2, StateQuery: -0.2},
			}},
			want: "invalid weight",
		},
		{
			name: "unknown state",
			spec: ProfileSpec{Role: RoleAnalyst, Transitions: map[State]map[State]float64{
				StateIdle: {"napping": 1},
			}},
			want: "unknown target state",
		},
		{
			name: "dangling target",
			spec: ProfileSpec{Role: RoleAnalyst, Transitions: map[State]map[State]float64{
				StateIdle: {StateQuery: 1},
			}},
			want: "has no transitions",
		},
		{
			name: "bad cron",
			spec: ProfileSpec{
				Role:        RoleService,
				Transitions: map[State]map[State]float64{StateIdle: {StateIdle: 1}},
				Waits:       map[State]WaitSpec{StateIdle: {Kind: WaitCron, Cron: "every tuesday"}},
			},
			want: "bad cron",
		},
		{
			name: "unknown role",
			spec: ProfileSpec{Role: "pilot", Transitions: map[State]map[State]float64{StateIdle: {StateIdle: 1}}},
			want: "unknown role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(tt.spec)
			if err == nil {
				t.Fatal("expected error")
			}
			if !simerr.IsKind(err, simerr.KindConfiguration) {
				t.Errorf("error kind: got %v, want configuration", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestNewModel_ToleratesRounding(t *testing.T) {
	_, err := NewModel(ProfileSpec{Role: RoleAnalyst, Transitions: map[State]map[State]float64{
		StateIdle:   {StateIdle: 0.1, StateQuery: 0.2, StateExport: 0.7 + 5e-7},
		StateQuery:  {StateIdle: 1},
		StateExport: {StateIdle: 1},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNextState_Converges(t *testing.T) {
	m, err := NewModel(ProfileSpec{Role: RoleAnalyst, Transitions: map[State]map[State]float64{
		StateIdle:  {StateQuery: 0.8, StateIdle: 0.1, StateBreak: 0.1},
		StateQuery: {StateIdle: 1},
		StateBreak: {StateIdle: 1},
	}})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	const n = 10000
	var query int
	for i := 0; i < n; i++ {
		s, err := m.NextState(RoleAnalyst, StateIdle, rng)
		if err != nil {
			t.Fatalf("NextState: %v", err)
		}
		if s == StateQuery {
			query++
		}
	}

	frac := float64(query) / n
	if frac < 0.78 || frac > 0.82 {
		t.Errorf("QUERY fraction = %.4f; want 0.8 +/- 0.02", frac)
	}
}

func TestNextState_DeterministicForSeed(t *testing.T) {
	m := DefaultModel()
	walk := func(seed int64) []State {
		rng := rand.New(rand.NewSource(seed))
		s := StateIdle
		var out []State
		for i := 0; i < 50; i++ {
			next, err := m.NextState(RoleDBA, s, rng)
			if err != nil {
				t.Fatalf("NextState: %v", err)
			}
			out = append(out, next)
			s = next
		}
		return out
	}

	a, b := walk(7), walk(7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("step %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestNextState_UnknownRole(t *testing.T) {
	m, err := NewModel(ProfileSpec{Role: RoleHR, Transitions: map[State]map[State]float64{StateIdle: {StateIdle: 1}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.NextState(RoleFinance, StateIdle, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for role without profile")
	}
}

func TestWaitTime_Kinds(t *testing.T) {
	m, err := NewModel(ProfileSpec{
		Role: RoleService,
		Transitions: map[State]map[State]float64{
			StateIdle:   {StateQuery: 1},
			StateQuery:  {StateUpdate: 1},
			StateUpdate: {StateExport: 1},
			StateExport: {StateIdle: 1},
		},
		Waits: map[State]WaitSpec{
			StateIdle:   {Kind: WaitCron, Cron: "*/15 * * * *"},
			StateQuery:  {Kind: WaitFixed, Mean: 5 * time.Second},
			StateUpdate: {Kind: WaitUniform, Min: 10 * time.Second, Max: 20 * time.Second},
			StateExport: {Kind: WaitExponential, Mean: 30 * time.Second, Max: time.Minute},
		},
	})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	rng := rand.New(rand.NewSource(3))
	now := time.Date(2024, 3, 4, 9, 7, 30, 0, time.UTC)

	d, _ := m.WaitTime(RoleService, StateIdle, now, rng)
	if d != 7*time.Minute+30*time.Second {
		t.Errorf("cron wait = %v; want 7m30s until 09:15", d)
	}

	// Exactly on a firing waits for the next one.
	onTick := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
	if d, _ := m.WaitTime(RoleService, StateIdle, onTick, rng); d != 15*time.Minute {
		t.Errorf("cron wait on tick = %v; want 15m", d)
	}

	if d, _ := m.WaitTime(RoleService, StateQuery, now, rng); d != 5*time.Second {
		t.Errorf("fixed wait = %v; want 5s", d)
	}

	for i := 0; i < 200; i++ {
		d, _ := m.WaitTime(RoleService, StateUpdate, now, rng)
		if d < 10*time.Second || d > 20*time.Second {
			t.Fatalf("uniform wait %v outside [10s, 20s]", d)
		}
		d, _ = m.WaitTime(RoleService, StateExport, now, rng)
		if d < MinWait || d > time.Minute {
			t.Fatalf("exponential wait %v outside [%v, 1m]", d, MinWait)
		}
	}
}

func TestWaitTime_ExponentialMean(t *testing.T) {
	m := DefaultModel()
	rng := rand.New(rand.NewSource(11))
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	const n = 5000
	var total time.Duration
	for i := 0; i < n; i++ {
		d, err := m.WaitTime(RoleSupport, StateQuery, now, rng)
		if err != nil {
			t.Fatal(err)
		}
		total += d
	}
	mean := total / n
	if mean < 27*time.Second || mean > 33*time.Second {
		t.Errorf("mean query wait = %v; want ~30s", mean)
	}
}

func TestLoadModel(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "tables.yaml")
	yamlDoc := `profiles:
  - role: analyst
    transitions:
      idle: {idle: 0.2, query: 0.8}
      query: {idle: 1.0}
    waits:
      idle: {kind: exponential, mean: 90s}
      query: {kind: fixed, mean: 45s}
`
	if err := os.WriteFile(yamlPath, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadModel(yamlPath)
	if err != nil {
		t.Fatalf("LoadModel yaml: %v", err)
	}
	if d, _ := m.WaitTime(RoleAnalyst, StateQuery, time.Now(), rand.New(rand.NewSource(1))); d != 45*time.Second {
		t.Errorf("query wait = %v; want 45s", d)
	}

	jsonPath := filepath.Join(dir, "tables.json")
	jsonDoc := `{"profiles": [{"role": "hr", "transitions": {"idle": {"idle": 0.5, "query": 0.6}, "query": {"idle": 1}}}]}`
	if err := os.WriteFile(jsonPath, []byte(jsonDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(jsonPath); !simerr.IsKind(err, simerr.KindConfiguration) {
		t.Errorf("LoadModel json with bad row: got %v, want configuration error", err)
	}

	if _, err := LoadModel(filepath.Join(dir, "tables.ini")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" DBA "); err != nil || r != RoleDBA {
		t.Errorf("ParseRole(DBA) = %v, %v", r, err)
	}
	if _, err := ParseRole("astronaut"); err == nil {
		t.Error("expected error for unknown role")
	}
	if !StateBreak.Passive() || StateQuery.Passive() {
		t.Error("Passive mismatch")
	}
}

func TestWaitTime_LogNormalMean(t *testing.T) {
	w := waitSampler{spec: WaitSpec{Kind: WaitLogNormal, Mean: time.Minute, Sigma: 0.8}}
	rng := rand.New(rand.NewSource(5))
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	const n = 20000
	var total time.Duration
	for i := 0; i < n; i++ {
		total += w.sample(now, rng)
	}
	mean := total / n
	if mean < 56*time.Second || mean > 64*time.Second {
		t.Errorf("mean lognormal wait = %v; want ~60s", mean)
	}
}
