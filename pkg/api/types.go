package api

import (
	"github.com/rmax-ai/auditsim/pkg/simulation"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

// ProgressSource is satisfied by *simulation.Scheduler.
type ProgressSource interface {
	Progress() simulation.Progress
}

// RecordSource is satisfied by *telemetry.Memory.
type RecordSource interface {
	Records() []telemetry.Record
}

// HealthResponse matches the GET /v1/health body.
type HealthResponse struct {
	Status string `json:"status"`
	Done   bool   `json:"done"`
}

// RecordsResponse matches the GET /v1/records body.
type RecordsResponse struct {
	Total   int                `json:"total"`
	Records []telemetry.Record `json:"records"`
}

// RoleSummary is one row of GET /v1/roles.
type RoleSummary struct {
	Role     string  `json:"role"`
	Actions  int64   `json:"actions"`
	Share    float64 `json:"share"`
	LastSeen string  `json:"last_seen,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
