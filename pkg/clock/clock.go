// Package clock maps wall-clock progress onto simulated time.
//
// Every component reads simulated time through a Clock. Simulated time
// advances at Speed times the wall rate from a fixed simulated start and
// stops at Start()+Duration. Once the end is reached, or Stop is called,
// Remaining returns zero; that is the shutdown signal polled by runtimes.
package clock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by SleepUntil when the clock is stopped mid-sleep.
var ErrStopped = errors.New("clock stopped")

// Option configures a Clock.
type Option func(*Clock)

// WithWallClock injects the wall-clock source. Used by tests.
func WithWallClock(now func() time.Time) Option {
	return func(c *Clock) {
		c.wall = now
	}
}

// Clock is a monotonic virtual clock running at a fixed speed multiplier.
// It is safe for concurrent use.
type Clock struct {
	startSim  time.Time
	startWall time.Time
	speed     float64
	duration  time.Duration
	wall      func() time.Time

	mu      sync.Mutex
	last    time.Time
	stopped bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a clock whose simulated time starts at startSim and runs for
// duration of simulated time at speed x wall rate. A non-positive speed is
// treated as 1.
func New(startSim time.Time, speed float64, duration time.Duration, opts ...Option) *Clock {
	if speed <= 0 {
		speed = 1
	}
	c := &Clock{
		startSim: startSim,
		speed:    speed,
		duration: duration,
		wall:     time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startWall = c.wall()
	c.last = startSim
	return c
}

// Start returns the simulated start time.
func (c *Clock) Start() time.Time { return c.startSim }

// End returns the simulated time at which the run is over.
func (c *Clock) End() time.Time { return c.startSim.Add(c.duration) }

// Speed returns the speed multiplier.
func (c *Clock) Speed() float64 { return c.speed }

// Duration returns the configured simulated duration.
func (c *Clock) Duration() time.Duration { return c.duration }

// Now returns the current simulated time. It never goes backwards and never
// passes End().
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return c.last
	}

	w := c.wall()
	now := c.startSim.Add(c.SimulatedFor(w.Sub(c.startWall)))
	if end := c.End(); now.After(end) || !w.Before(c.Deadline()) {
		now = end
	}
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}

// Elapsed returns simulated time elapsed since Start.
func (c *Clock) Elapsed() time.Duration {
	return c.Now().Sub(c.startSim)
}

// Remaining returns simulated time left before End, or zero once the
// clock has expired or been stopped.
func (c *Clock) Remaining() time.Duration {
	now := c.Now()

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return 0
	}

	rem := c.End().Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// Fraction returns the share of the simulated duration already elapsed, in [0,1].
func (c *Clock) Fraction() float64 {
	if c.duration <= 0 {
		return 1
	}
	f := float64(c.Elapsed()) / float64(c.duration)
	if f > 1 {
		return 1
	}
	return f
}

// SimulatedFor converts a wall duration into the simulated duration it covers.
func (c *Clock) SimulatedFor(real time.Duration) time.Duration {
	return time.Duration(float64(real) * c.speed)
}

// RealFor converts a simulated duration into the wall duration needed to cover it.
func (c *Clock) RealFor(sim time.Duration) time.Duration {
	return time.Duration(float64(sim) / c.speed)
}

// WallAt returns the wall time at which simulated time t is reached.
func (c *Clock) WallAt(t time.Time) time.Time {
	return c.startWall.Add(c.RealFor(t.Sub(c.startSim)))
}

// Deadline returns the wall time at which the clock expires.
func (c *Clock) Deadline() time.Time {
	return c.WallAt(c.End())
}

// Stop freezes the clock. Remaining returns zero afterwards.
func (c *Clock) Stop() {
	c.Now()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Stopped returns a channel closed by Stop.
func (c *Clock) Stopped() <-chan struct{} {
	return c.stopCh
}

// Context derives the shared cancellation signal: the returned context is
// cancelled at the wall deadline, when Stop is called, or when parent ends.
func (c *Clock) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithDeadline(parent, c.Deadline())
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// SleepUntil blocks until simulated time reaches t. It returns early with
// ctx.Err() when ctx is done, or ErrStopped when the clock is stopped.
func (c *Clock) SleepUntil(ctx context.Context, t time.Time) error {
	d := c.WallAt(t).Sub(c.wall())
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return ErrStopped
	}
}
