package sink

import (
	"math/rand"
	"time"
)

// Backoff computes the wait before a retry.
type Backoff interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows the wait by Factor per attempt, capped at Max,
// with +/- Jitter applied to the result.
type ExponentialBackoff struct {
	Base   time.Duration `json:"base" yaml:"base" mapstructure:"base"`
	Max    time.Duration `json:"max" yaml:"max" mapstructure:"max"`
	Factor float64       `json:"factor" yaml:"factor" mapstructure:"factor"`
	Jitter float64       `json:"jitter" yaml:"jitter" mapstructure:"jitter"` // 0.0 to 1.0
}

// DefaultBackoff is 50ms doubling up to 2s with 20% jitter.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   50 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the wait for the given 0-based retry.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}

	delay := float64(b.Base)
	for i := 0; i < attempt; i++ {
		delay *= b.Factor
	}
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}
