package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// UsageReport aggregates actions per time bucket and role.
type UsageReport struct {
	store ReportStore
}

// NewUsageReport creates a new UsageReport generator.
func NewUsageReport(s ReportStore) *UsageReport {
	return &UsageReport{store: s}
}

type usageKey struct {
	bucket time.Time
	role   string
}

type usageRow struct {
	actions, failures, retries, scenario int64
}

// Generate writes one row per (bucket, role). Filters: "bucket" ("hour",
// the default, or "day"), "agent_id" and "scenario".
func (r *UsageReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"bucket_ts", "role", "actions", "failures", "retries", "scenario_actions"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	bucket := time.Hour
	switch b := params.str("bucket"); b {
	case "", "hour":
	case "day":
		bucket = 24 * time.Hour
	default:
		return nil, fmt.Errorf("unknown bucket %q", b)
	}

	records, err := load(ctx, r.store, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	rows := make(map[usageKey]*usageRow)
	for _, rec := range records {
		k := usageKey{bucket: rec.Timestamp.UTC().Truncate(bucket), role: rec.Role}
		row := rows[k]
		if row == nil {
			row = &usageRow{}
			rows[k] = row
		}
		row.actions++
		row.retries += int64(rec.Retries)
		if !rec.Success {
			row.failures++
		}
		if rec.ScenarioID != "" {
			row.scenario++
		}
	}

	keys := make([]usageKey, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].bucket.Equal(keys[j].bucket) {
			return keys[i].bucket.Before(keys[j].bucket)
		}
		return keys[i].role < keys[j].role
	})

	for _, k := range keys {
		row := rows[k]
		if err := writer.Write([]string{
			k.bucket.Format(time.RFC3339),
			k.role,
			strconv.FormatInt(row.actions, 10),
			strconv.FormatInt(row.failures, 10),
			strconv.FormatInt(row.retries, 10),
			strconv.FormatInt(row.scenario, 10),
		}); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
