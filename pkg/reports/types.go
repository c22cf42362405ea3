// Package reports derives CSV datasets from recorded telemetry.
package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

type ReportType string

const (
	ReportTypeAccessLog ReportType = "access_log"
	ReportTypeUsage     ReportType = "usage"
	ReportTypeScenarios ReportType = "scenarios"
)

// Types lists every report NewReportGenerator accepts.
var Types = []ReportType{ReportTypeAccessLog, ReportTypeUsage, ReportTypeScenarios}

// ReportParams narrows the records a report covers. Zero Start or End
// leave that side open. Filters carries report-specific options such as
// "agent_id", "scenario" or "bucket".
type ReportParams struct {
	Start   time.Time
	End     time.Time
	Filters map[string]interface{}
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	Query(ctx context.Context, filter telemetry.Filter) ([]telemetry.Record, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}

func (p ReportParams) str(key string) string {
	if v, ok := p.Filters[key].(string); ok {
		return v
	}
	return ""
}

func (p ReportParams) within(ts time.Time) bool {
	if !p.Start.IsZero() && ts.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !ts.Before(p.End) {
		return false
	}
	return true
}

// load queries the store and applies the time window.
func load(ctx context.Context, s ReportStore, params ReportParams) ([]telemetry.Record, error) {
	records, err := s.Query(ctx, telemetry.Filter{
		AgentID:  params.str("agent_id"),
		Scenario: params.str("scenario"),
	})
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, r := range records {
		if params.within(r.Timestamp) {
			out = append(out, r)
		}
	}
	return out, nil
}
