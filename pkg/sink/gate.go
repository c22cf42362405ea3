package sink

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rmax-ai/auditsim/pkg/metrics"
)

// Gate bounds the number of submissions in flight across every agent,
// independent of population size, and optionally their rate.
type Gate struct {
	capacity int64
	sem      *semaphore.Weighted
	limiter  *rate.Limiter

	mu       sync.Mutex
	inFlight int64
	peak     int64
}

// NewGate allows at most capacity concurrent submissions. perSecond > 0
// additionally limits admissions per wall second.
func NewGate(capacity int64, perSecond float64) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	g := &Gate{
		capacity: capacity,
		sem:      semaphore.NewWeighted(capacity),
	}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return g
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()
	metrics.SinkInFlight.Inc()
	return nil
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	metrics.SinkInFlight.Dec()
	g.sem.Release(1)
}

// Capacity returns the configured bound.
func (g *Gate) Capacity() int64 { return g.capacity }

// InFlight returns the current number of held slots.
func (g *Gate) InFlight() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Peak returns the highest number of slots ever held at once.
func (g *Gate) Peak() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}
