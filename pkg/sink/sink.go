// Package sink submits generated actions to the system that executes them
// and reports back structured outcomes.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/rmax-ai/auditsim/pkg/action"
)

// Sink executes one action. A non-nil error is a transport-level failure
// (the action may not have reached the target); an Outcome with Success
// false is a failure the target reported.
type Sink interface {
	Submit(ctx context.Context, a action.Action) (action.Outcome, error)
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, a action.Action) (action.Outcome, error)

// Submit calls f.
func (f Func) Submit(ctx context.Context, a action.Action) (action.Outcome, error) {
	return f(ctx, a)
}

// Error is a transport-level sink failure.
type Error struct {
	Kind      action.ErrorKind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error whose retryability follows kind.
func NewError(kind action.ErrorKind, err error) *Error {
	return &Error{Kind: kind, Retryable: kind.Retryable(), Err: err}
}

// classify maps any error returned by a Sink to an error kind and whether
// it may be retried.
func classify(err error) (action.ErrorKind, bool) {
	var se *Error
	switch {
	case errors.As(err, &se):
		return se.Kind, se.Retryable
	case errors.Is(err, context.DeadlineExceeded):
		return action.ErrTimeout, action.ErrTimeout.Retryable()
	case errors.Is(err, context.Canceled):
		return action.ErrCancelled, false
	default:
		return action.ErrInternal, false
	}
}

// Closer is implemented by sinks holding resources.
type Closer interface {
	Close() error
}

// Close closes s when it holds resources.
func Close(s Sink) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
