package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/calendar"
	"github.com/rmax-ai/auditsim/pkg/catalog"
	"github.com/rmax-ai/auditsim/pkg/generator"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/situation"
)

func testAction(agentID string, seq uint64) action.Action {
	return action.Action{
		ID:        action.FormatID(agentID, seq),
		Seq:       seq,
		AgentID:   agentID,
		Role:      behavior.RoleAnalyst,
		Target:    "orders",
		Operation: action.OpSelect,
		Payload:   "SELECT * FROM orders WHERE id = 1",
	}
}

func TestExponentialBackoff_Next(t *testing.T) {
	b := &ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{9, time.Second},
	}
	for _, tt := range tests {
		if got := b.Next(tt.attempt); got != tt.expected {
			t.Errorf("Next(%d) = %v; want %v", tt.attempt, got, tt.expected)
		}
	}

	b.Jitter = 0.1
	for i := 0; i < 100; i++ {
		got := b.Next(0)
		if got < 90*time.Millisecond || got > 110*time.Millisecond {
			t.Fatalf("Next(0) with jitter = %v", got)
		}
	}
}

func TestGate_BoundsConcurrency(t *testing.T) {
	const k = 4
	g := NewGate(k, 0)
	mock := NewMockSink(MockConfig{Hold: 2 * time.Millisecond})
	sub := NewSubmitter(mock, g, 0, logging.NewNop())

	var wg sync.WaitGroup
	for w := 0; w < 10*k; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				out := sub.Submit(context.Background(), testAction(fmt.Sprintf("agent-%02d", w), uint64(i)))
				assert.True(t, out.Success)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, g.Peak(), int64(k))
	assert.LessOrEqual(t, mock.Peak(), int64(k))
	assert.Greater(t, g.Peak(), int64(1), "the gate should admit parallel work")
	assert.Zero(t, g.InFlight())
	assert.EqualValues(t, 10*k*5, mock.Calls())
}

func TestGate_AcquireHonorsContext(t *testing.T) {
	g := NewGate(1, 0)
	require.NoError(t, g.Acquire(context.Background()))
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Acquire(ctx))
	assert.EqualValues(t, 1, g.Peak())
}

func TestSubmitter_RetriesFailFirst(t *testing.T) {
	mock := NewMockSink(MockConfig{FailFirst: 2})
	sub := NewSubmitter(mock, NewGate(2, 0), 3, logging.NewNop())
	sub.Sleep = NoSleep

	out := sub.Submit(context.Background(), testAction("a", 1))
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Retries)
	assert.Equal(t, 3, out.Attempts)

	out = sub.Submit(context.Background(), testAction("a", 2))
	assert.True(t, out.Success)
	assert.Zero(t, out.Retries)
	assert.EqualValues(t, 4, mock.Calls())
}

func TestSubmitter_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	s := Func(func(ctx context.Context, a action.Action) (action.Outcome, error) {
		calls++
		return action.Outcome{}, NewError(action.ErrTimeout, errors.New("slow"))
	})
	sub := NewSubmitter(s, nil, 2, logging.NewNop())
	sub.Sleep = NoSleep

	out := sub.Submit(context.Background(), testAction("a", 1))
	assert.False(t, out.Success)
	assert.Equal(t, action.ErrTimeout, out.ErrorKind)
	assert.Equal(t, 2, out.Retries)
	assert.Equal(t, 3, calls)
}

func TestSubmitter_NonRetryableNotRetried(t *testing.T) {
	calls := 0
	s := Func(func(ctx context.Context, a action.Action) (action.Outcome, error) {
		calls++
		return action.Outcome{}, NewError(action.ErrPermission, errors.New("denied"))
	})
	sub := NewSubmitter(s, nil, 5, logging.NewNop())

	out := sub.Submit(context.Background(), testAction("a", 1))
	assert.Equal(t, action.ErrPermission, out.ErrorKind)
	assert.Zero(t, out.Retries)
	assert.Equal(t, 1, calls)

	s = Func(func(ctx context.Context, a action.Action) (action.Outcome, error) {
		panic("unreachable")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGate(1, 0)
	sub = NewSubmitter(s, g, 5, logging.NewNop())
	out = sub.Submit(ctx, testAction("a", 2))
	assert.Equal(t, action.ErrCancelled, out.ErrorKind)
}

func TestMockSink_Deterministic(t *testing.T) {
	run := func() []action.Outcome {
		m := NewMockSink(MockConfig{Seed: 9, ErrorRate: 0.3, Latency: 5 * time.Millisecond, LatencySpread: 20 * time.Millisecond})
		var out []action.Outcome
		for i := 0; i < 200; i++ {
			o, err := m.Submit(context.Background(), testAction("agent", uint64(i)))
			require.NoError(t, err)
			out = append(out, o)
		}
		return out
	}
	first, second := run(), run()
	assert.Equal(t, first, second)

	failed := 0
	for _, o := range first {
		if !o.Success {
			failed++
			assert.Contains(t, []action.ErrorKind{action.ErrPermission, action.ErrConstraint, action.ErrSyntax}, o.ErrorKind)
		}
		assert.GreaterOrEqual(t, o.Latency, 5*time.Millisecond)
		assert.Less(t, o.Latency, 25*time.Millisecond)
	}
	assert.InDelta(t, 60, failed, 25)
}

func TestMockSink_ReadOnlyRoles(t *testing.T) {
	m := NewMockSink(MockConfig{ReadOnlyRoles: []behavior.Role{behavior.RoleAnalyst}})
	a := testAction("analyst-001", 1)
	a.Operation = action.OpDelete
	o, err := m.Submit(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, action.ErrPermission, o.ErrorKind)
}

func TestSQLiteSink_ExecutesGeneratedPayloads(t *testing.T) {
	cat := catalog.Default()
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "sandbox.db"), cat, SQLiteOptions{
		SeedRows:      20,
		ReadOnlyRoles: []behavior.Role{behavior.RoleSupport},
	})
	require.NoError(t, err)
	defer s.Close()

	gen := generator.New(cat, generator.WithLogger(logging.NewNop()))
	res := situation.NewResolver(calendar.DefaultCalendar(), cat)
	rng := rand.New(rand.NewSource(11))
	at := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

	var seq uint64
	for _, role := range behavior.AllRoles() {
		if role == behavior.RoleSupport {
			continue
		}
		a, err := agent.New(string(role)+"-001", role, agent.Expert, agent.WorkSchedule{Hours: calendar.DefaultBusinessHours()}, 1, time.UTC)
		require.NoError(t, err)
		for _, st := range behavior.AllStates() {
			for i := 0; i < 10; i++ {
				seq++
				act := gen.Generate(generator.Request{Agent: a, State: st, Situation: res.Resolve(a, st, at), Seq: seq}, rng)
				out, err := s.Submit(context.Background(), act)
				require.NoError(t, err)
				assert.True(t, out.Success, "%s %s: %q: %s", role, st, act.Payload, out.Message)
			}
		}
	}

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM products").Scan(&n))
	assert.GreaterOrEqual(t, n, 1)
}

func TestSQLiteSink_ErrorMapping(t *testing.T) {
	s, err := NewSQLiteSink(":memory:", catalog.Default(), SQLiteOptions{ReadOnlyRoles: []behavior.Role{behavior.RoleSupport}})
	require.NoError(t, err)
	defer s.Close()

	tests := []struct {
		name    string
		role    behavior.Role
		op      action.Operation
		payload string
		kind    action.ErrorKind
	}{
		{"syntax", behavior.RoleDBA, action.OpSelect, "SELEC * FROM orders", action.ErrSyntax},
		{"missing table", behavior.RoleDBA, action.OpSelect, "SELECT * FROM nowhere", action.ErrSyntax},
		{"constraint", behavior.RoleDBA, action.OpInsert, "INSERT INTO orders (id, status) VALUES (1, 'a'), (1, 'b')", action.ErrConstraint},
		{"read-only role", behavior.RoleSupport, action.OpUpdate, "UPDATE tickets SET status = 'closed'", action.ErrPermission},
		{"ok", behavior.RoleDBA, action.OpSelect, "SELECT 1 FROM system_health LIMIT 1", action.ErrNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Submit(context.Background(), action.Action{ID: tt.name, Role: tt.role, Operation: tt.op, Payload: tt.payload})
			require.NoError(t, err)
			assert.Equal(t, tt.kind, out.ErrorKind, out.Message)
		})
	}
}

func TestHTTPSink(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch env.Target {
		case "flaky":
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		case "secret":
			w.WriteHeader(http.StatusForbidden)
			return
		case "broken":
			json.NewEncoder(w).Encode(Reply{Success: false, ErrorKind: "constraint", LatencyMS: 7})
			return
		}
		json.NewEncoder(w).Encode(Reply{Success: true, LatencyMS: 12})
	}))
	defer srv.Close()

	sub := NewSubmitter(NewHTTPSink(srv.URL, time.Second), NewGate(2, 0), 2, logging.NewNop())
	sub.Sleep = NoSleep

	submit := func(target string) action.Outcome {
		a := testAction("a", 1)
		a.Target = target
		return sub.Submit(context.Background(), a)
	}

	out := submit("orders")
	assert.True(t, out.Success)
	assert.EqualValues(t, 12, out.LatencyMS())

	out = submit("flaky")
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Retries)

	assert.Equal(t, action.ErrPermission, submit("secret").ErrorKind)

	out = submit("broken")
	assert.Equal(t, action.ErrConstraint, out.ErrorKind)
	assert.EqualValues(t, 7, out.LatencyMS())

	down := NewSubmitter(NewHTTPSink("http://127.0.0.1:1", 100*time.Millisecond), nil, 1, logging.NewNop())
	down.Sleep = NoSleep
	out = down.Submit(context.Background(), testAction("a", 1))
	assert.Equal(t, action.ErrConnection, out.ErrorKind)
	assert.Equal(t, 1, out.Retries)
}

func TestClassify(t *testing.T) {
	kind, retryable := classify(fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, action.ErrTimeout, kind)
	assert.Equal(t, action.ErrTimeout.Retryable(), retryable)

	kind, retryable = classify(context.Canceled)
	assert.Equal(t, action.ErrCancelled, kind)
	assert.False(t, retryable)

	kind, retryable = classify(NewError(action.ErrConnection, errors.New("refused")))
	assert.Equal(t, action.ErrConnection, kind)
	assert.True(t, retryable)

	kind, _ = classify(errors.New("boom"))
	assert.Equal(t, action.ErrInternal, kind)
}

func TestHTTPSink_ClientTimeoutIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	hs := NewHTTPSink(srv.URL, 20*time.Millisecond)
	var calls atomic.Int32
	s := Func(func(ctx context.Context, a action.Action) (action.Outcome, error) {
		calls.Add(1)
		return hs.Submit(ctx, a)
	})
	sub := NewSubmitter(s, nil, 1, logging.NewNop())
	sub.Sleep = NoSleep

	out := sub.Submit(context.Background(), testAction("a", 1))
	assert.False(t, out.Success)
	assert.Equal(t, action.ErrTimeout, out.ErrorKind)
	assert.Equal(t, 1, out.Retries)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSubmitter_RunEndDuringCallIsCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	s := Func(func(ctx context.Context, a action.Action) (action.Outcome, error) {
		calls++
		<-ctx.Done()
		return action.Outcome{}, ctx.Err()
	})
	sub := NewSubmitter(s, nil, 3, logging.NewNop())
	sub.Sleep = NoSleep

	out := sub.Submit(ctx, testAction("a", 1))
	assert.Equal(t, action.ErrCancelled, out.ErrorKind)
	assert.Zero(t, out.Retries)
	assert.Equal(t, 1, calls)
}
