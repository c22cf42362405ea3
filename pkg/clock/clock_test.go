package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeWall struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeWall) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeWall) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

var simStart = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func TestClock_Scaling(t *testing.T) {
	tests := []struct {
		speed float64
		real  time.Duration
	}{
		{1, 10 * time.Second},
		{60, 30 * time.Second},
		{100, 36 * time.Second},
		{3600, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		wall := &fakeWall{now: time.Unix(1_700_000_000, 0)}
		c := New(simStart, tt.speed, 1000*time.Hour, WithWallClock(wall.Now))
		wall.Advance(tt.real)

		want := time.Duration(float64(tt.real) * tt.speed)
		got := c.Elapsed()
		lo := time.Duration(float64(want) * 0.97)
		hi := time.Duration(float64(want) * 1.03)
		if got < lo || got > hi {
			t.Errorf("speed %v real %v: elapsed %v not in [%v, %v]", tt.speed, tt.real, got, lo, hi)
		}
	}
}

func TestClock_ScalingWallTime(t *testing.T) {
	const speed = 100
	t0 := time.Now()
	c := New(simStart, speed, 24*time.Hour)
	time.Sleep(200 * time.Millisecond)
	elapsed := c.Elapsed()
	d := time.Since(t0)

	hi := time.Duration(float64(d) * speed * 1.03)
	lo := time.Duration(float64(d) * speed * 0.97)
	if elapsed < lo || elapsed > hi {
		t.Errorf("elapsed %v not in [%v, %v] for real %v", elapsed, lo, hi, d)
	}
}

func TestClock_MonotonicAndCapped(t *testing.T) {
	wall := &fakeWall{now: time.Unix(1_700_000_000, 0)}
	c := New(simStart, 10, time.Hour, WithWallClock(wall.Now))

	wall.Advance(time.Minute)
	first := c.Now()

	// A wall clock step backwards must not move simulated time backwards.
	wall.Advance(-30 * time.Second)
	if got := c.Now(); got.Before(first) {
		t.Errorf("Now went backwards: %v < %v", got, first)
	}

	wall.Advance(time.Hour)
	if got := c.Now(); !got.Equal(c.End()) {
		t.Errorf("Now = %v; want capped at End %v", got, c.End())
	}
	if rem := c.Remaining(); rem != 0 {
		t.Errorf("Remaining = %v; want 0 after expiry", rem)
	}
}

func TestClock_RemainingAndStop(t *testing.T) {
	wall := &fakeWall{now: time.Unix(1_700_000_000, 0)}
	c := New(simStart, 60, time.Hour, WithWallClock(wall.Now))

	wall.Advance(30 * time.Second) // 30 simulated minutes
	if rem := c.Remaining(); rem != 30*time.Minute {
		t.Errorf("Remaining = %v; want 30m", rem)
	}

	c.Stop()
	if rem := c.Remaining(); rem != 0 {
		t.Errorf("Remaining after Stop = %v; want 0", rem)
	}
	frozen := c.Now()
	wall.Advance(10 * time.Second)
	if !c.Now().Equal(frozen) {
		t.Errorf("stopped clock must not advance")
	}
	select {
	case <-c.Stopped():
	default:
		t.Errorf("Stopped channel not closed")
	}
}

func TestClock_Conversions(t *testing.T) {
	wall := &fakeWall{now: time.Unix(1_700_000_000, 0)}
	c := New(simStart, 120, 2*time.Hour, WithWallClock(wall.Now))

	if got := c.RealFor(2 * time.Minute); got != time.Second {
		t.Errorf("RealFor(2m) = %v; want 1s", got)
	}
	if got := c.SimulatedFor(time.Second); got != 2*time.Minute {
		t.Errorf("SimulatedFor(1s) = %v; want 2m", got)
	}
	if got := c.Deadline().Sub(wall.Now()); got != time.Minute {
		t.Errorf("Deadline offset = %v; want 1m", got)
	}
}

func TestClock_SleepUntil(t *testing.T) {
	c := New(simStart, 1000, time.Hour)

	start := time.Now()
	if err := c.SleepUntil(context.Background(), simStart.Add(50*time.Second)); err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
	if waited := time.Since(start); waited < 40*time.Millisecond {
		t.Errorf("SleepUntil returned after %v; want ~50ms", waited)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.SleepUntil(ctx, simStart.Add(30*time.Minute))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("SleepUntil with cancelled ctx = %v; want context.Canceled", err)
	}
}

func TestClock_ContextCancelledOnStop(t *testing.T) {
	c := New(simStart, 1, time.Hour)
	ctx, cancel := c.Context(context.Background())
	defer cancel()

	c.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after Stop")
	}
}

func TestClock_ContextDeadline(t *testing.T) {
	c := New(simStart, 3600, 100*time.Second) // ~28ms of wall time
	ctx, cancel := c.Context(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			t.Errorf("ctx.Err() = %v; want DeadlineExceeded", ctx.Err())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled at deadline")
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining = %v after deadline; want 0", c.Remaining())
	}
}
