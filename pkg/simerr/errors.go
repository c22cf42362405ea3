// Package simerr defines the error taxonomy shared by the simulation engine.
package simerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a simulation error.
type Kind string

const (
	// KindConfiguration is fatal and raised before any agent starts:
	// malformed transition weights, missing required options.
	KindConfiguration Kind = "configuration"

	// KindGeneration is recoverable per tick: no action could be produced.
	KindGeneration Kind = "generation"

	// KindSink is recoverable per submission: connection, permission, timeout.
	KindSink Kind = "sink"

	// KindScheduling marks a runtime still blocked after the grace period.
	KindScheduling Kind = "scheduling"
)

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration builds a configuration error from a format string.
func Configuration(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

// Generation builds a generation error from a format string.
func Generation(op, format string, args ...any) *Error {
	return &Error{Kind: KindGeneration, Op: op, Err: fmt.Errorf(format, args...)}
}

// Scheduling builds a scheduling error from a format string.
func Scheduling(op, format string, args ...any) *Error {
	return &Error{Kind: KindScheduling, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether any error in err's chain is a simerr.Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
