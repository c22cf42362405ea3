package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/metrics"
)

// DefaultMaxRetries is used when a Submitter has a negative retry bound.
const DefaultMaxRetries = 3

// Submitter wraps a Sink with the shared capacity gate and bounded retries.
// It never returns an error: every submission ends in an Outcome.
type Submitter struct {
	Sink       Sink
	Gate       *Gate
	MaxRetries int
	Backoff    Backoff

	// Sleep waits between retries. Nil sleeps on the wall clock.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// NewSubmitter returns a submitter with the default backoff.
func NewSubmitter(s Sink, g *Gate, maxRetries int, logger *slog.Logger) *Submitter {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Submitter{
		Sink:       s,
		Gate:       g,
		MaxRetries: maxRetries,
		Backoff:    DefaultBackoff(),
		Logger:     logging.OrDefault(logger).With("component", "sink"),
	}
}

// Submit delivers a. Retryable transport errors are retried up to
// MaxRetries times; the final failure becomes a failed Outcome. Attempts
// and Retries on the returned Outcome count every delivery made.
func (s *Submitter) Submit(ctx context.Context, a action.Action) action.Outcome {
	logger := logging.OrDefault(s.Logger)
	retries := 0
	for {
		out, err := s.attempt(ctx, a)
		if err == nil {
			out.Retries = retries
			out.Attempts = retries + 1
			return out
		}

		kind, retryable := classify(err)
		if ctx.Err() != nil {
			// The run ended under the call; whatever the sink said, the
			// action was cut off rather than timed out.
			kind, retryable = action.ErrCancelled, false
		}
		if !retryable || retries >= s.MaxRetries {
			logger.Debug("submission failed",
				"action_id", a.ID,
				"error_kind", kind,
				"retries", retries,
				"error", err,
			)
			out = action.Failed(kind, out.Latency, err.Error())
			out.Retries = retries
			out.Attempts = retries + 1
			return out
		}

		metrics.SinkRetriesTotal.WithLabelValues(string(kind)).Inc()
		if err := s.sleep(ctx, s.backoff().Next(retries)); err != nil {
			out = action.Failed(action.ErrCancelled, out.Latency, err.Error())
			out.Retries = retries
			out.Attempts = retries + 1
			return out
		}
		retries++
	}
}

// attempt performs one gated delivery. The measured latency is used when
// the sink reports none.
func (s *Submitter) attempt(ctx context.Context, a action.Action) (action.Outcome, error) {
	if s.Gate != nil {
		if err := s.Gate.Acquire(ctx); err != nil {
			return action.Outcome{}, NewError(action.ErrCancelled, err)
		}
		defer s.Gate.Release()
	}

	start := time.Now()
	out, err := s.Sink.Submit(ctx, a)
	if out.Latency == 0 {
		out.Latency = time.Since(start)
	}
	return out, err
}

func (s *Submitter) backoff() Backoff {
	if s.Backoff == nil {
		return DefaultBackoff()
	}
	return s.Backoff
}

func (s *Submitter) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoSleep skips retry waits. Used in virtual pacing and tests.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
