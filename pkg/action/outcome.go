package action

import "time"

// ErrorKind classifies why a submission failed.
type ErrorKind string

const (
	ErrNone       ErrorKind = "none"
	ErrConnection ErrorKind = "connection"
	ErrPermission ErrorKind = "permission"
	ErrTimeout    ErrorKind = "timeout"
	ErrSyntax     ErrorKind = "syntax"
	ErrConstraint ErrorKind = "constraint"
	ErrCancelled  ErrorKind = "cancelled"
	ErrInternal   ErrorKind = "internal"
)

// Retryable reports whether a failure of this kind may succeed on retry.
func (k ErrorKind) Retryable() bool {
	return k == ErrConnection || k == ErrTimeout
}

// Outcome is the structured result of submitting one Action.
type Outcome struct {
	Success   bool
	ErrorKind ErrorKind
	Latency   time.Duration
	Attempts  int
	Retries   int
	Message   string
}

// LatencyMS returns the latency in whole milliseconds.
func (o Outcome) LatencyMS() int64 {
	return o.Latency.Milliseconds()
}

// Succeeded builds a successful outcome.
func Succeeded(latency time.Duration) Outcome {
	return Outcome{Success: true, ErrorKind: ErrNone, Latency: latency, Attempts: 1}
}

// Failed builds a failed outcome of kind.
func Failed(kind ErrorKind, latency time.Duration, msg string) Outcome {
	return Outcome{ErrorKind: kind, Latency: latency, Attempts: 1, Message: msg}
}

// Label is "success" or the error kind, for metrics and reports.
func (o Outcome) Label() string {
	if o.Success {
		return "success"
	}
	if o.ErrorKind == "" {
		return string(ErrInternal)
	}
	return string(o.ErrorKind)
}
