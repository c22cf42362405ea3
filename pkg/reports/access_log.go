package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// AccessLogReport generates one CSV row per recorded action, shaped like a
// database audit log.
type AccessLogReport struct {
	store ReportStore
}

// NewAccessLogReport creates a new AccessLogReport generator.
func NewAccessLogReport(s ReportStore) *AccessLogReport {
	return &AccessLogReport{store: s}
}

// Generate writes the access log. Filters: "agent_id", "scenario",
// "role" and "outcome".
func (r *AccessLogReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"timestamp", "user", "role", "department", "operation", "object", "sensitivity", "outcome", "latency_ms", "statement"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	records, err := load(ctx, r.store, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	role, outcome := params.str("role"), params.str("outcome")

	for _, rec := range records {
		if role != "" && rec.Role != role {
			continue
		}
		if outcome != "" && rec.Outcome != outcome {
			continue
		}
		row := []string{
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.AgentID,
			rec.Role,
			rec.Department,
			rec.Operation,
			rec.Target,
			rec.Sensitivity,
			rec.Outcome,
			strconv.FormatInt(rec.LatencyMS, 10),
			rec.Payload,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
