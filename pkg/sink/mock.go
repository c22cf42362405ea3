package sink

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
)

// MockConfig shapes the outcomes a MockSink reports.
type MockConfig struct {
	// Seed salts the outcome hash.
	Seed int64
	// FailFirst fails the first N deliveries of every agent with a
	// retryable connection error.
	FailFirst int
	// ErrorRate is the share of actions the target rejects.
	ErrorRate float64
	// Latency is the base simulated latency; each action adds up to
	// LatencySpread on top.
	Latency       time.Duration
	LatencySpread time.Duration
	// Hold blocks each delivery for this long on the wall clock.
	Hold time.Duration
	// ReadOnlyRoles are refused every write operation.
	ReadOnlyRoles []behavior.Role
}

// MockSink reports deterministic outcomes: the same action always gets the
// same result and latency for a given seed.
type MockSink struct {
	config   MockConfig
	readOnly map[behavior.Role]bool

	mu        sync.Mutex
	delivered map[string]int
	calls     int64
	inFlight  int64
	peak      int64
}

// NewMockSink returns a mock sink.
func NewMockSink(cfg MockConfig) *MockSink {
	m := &MockSink{
		config:    cfg,
		readOnly:  make(map[behavior.Role]bool, len(cfg.ReadOnlyRoles)),
		delivered: make(map[string]int),
	}
	for _, r := range cfg.ReadOnlyRoles {
		m.readOnly[r] = true
	}
	return m
}

var rejectKinds = [...]action.ErrorKind{action.ErrPermission, action.ErrConstraint, action.ErrSyntax}

// Submit implements Sink.
func (m *MockSink) Submit(ctx context.Context, a action.Action) (action.Outcome, error) {
	m.mu.Lock()
	m.calls++
	m.delivered[a.AgentID]++
	n := m.delivered[a.AgentID]
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.config.Hold > 0 {
		t := time.NewTimer(m.config.Hold)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return action.Outcome{}, NewError(action.ErrCancelled, ctx.Err())
		}
	}

	h := m.hash(a.ID)
	latency := m.config.Latency
	if m.config.LatencySpread > 0 {
		latency += time.Duration(h % uint64(m.config.LatencySpread))
	}
	if latency <= 0 {
		latency = time.Millisecond
	}

	if n <= m.config.FailFirst {
		return action.Outcome{Latency: latency}, NewError(action.ErrConnection,
			fmt.Errorf("connection refused (delivery %d of agent %s)", n, a.AgentID))
	}
	if m.readOnly[a.Role] && !a.Operation.ReadOnly() {
		return action.Failed(action.ErrPermission, latency, "role "+string(a.Role)+" is read-only"), nil
	}
	if m.config.ErrorRate > 0 {
		u := float64(h>>11) / float64(uint64(1)<<53)
		if u < m.config.ErrorRate {
			kind := rejectKinds[h%uint64(len(rejectKinds))]
			return action.Failed(kind, latency, "rejected by target"), nil
		}
	}
	return action.Succeeded(latency), nil
}

func (m *MockSink) hash(id string) uint64 {
	f := fnv.New64a()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(m.config.Seed))
	f.Write(seed[:])
	f.Write([]byte(id))
	return f.Sum64()
}

// Calls returns the number of deliveries received, retries included.
func (m *MockSink) Calls() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Peak returns the highest number of concurrent deliveries observed.
func (m *MockSink) Peak() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// ErrUnavailable is returned by sinks that cannot reach their target.
var ErrUnavailable = errors.New("sink unavailable")
