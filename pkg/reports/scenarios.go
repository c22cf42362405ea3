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

// ScenarioReport summarizes each scenario instance: the labelled ground
// truth for a detection dataset.
type ScenarioReport struct {
	store ReportStore
}

// NewScenarioReport creates a new ScenarioReport generator.
func NewScenarioReport(s ReportStore) *ScenarioReport {
	return &ScenarioReport{store: s}
}

type instance struct {
	id, name, agent string
	first, last     time.Time
	actions         int
	failures        int
	maxStage        int
}

// Generate writes one row per scenario id, ordered by first action.
func (r *ScenarioReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"scenario_id", "scenario", "agent_id", "first_ts", "last_ts", "actions", "failures", "last_stage"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	records, err := load(ctx, r.store, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	byID := make(map[string]*instance)
	for _, rec := range records {
		if rec.ScenarioID == "" {
			continue
		}
		in := byID[rec.ScenarioID]
		if in == nil {
			in = &instance{id: rec.ScenarioID, name: rec.Scenario, agent: rec.AgentID, first: rec.Timestamp, maxStage: -1}
			byID[rec.ScenarioID] = in
		}
		if rec.Timestamp.Before(in.first) {
			in.first = rec.Timestamp
		}
		if rec.Timestamp.After(in.last) {
			in.last = rec.Timestamp
		}
		in.actions++
		if !rec.Success {
			in.failures++
		}
		if rec.Stage != nil && *rec.Stage > in.maxStage {
			in.maxStage = *rec.Stage
		}
	}

	list := make([]*instance, 0, len(byID))
	for _, in := range byID {
		list = append(list, in)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].first.Equal(list[j].first) {
			return list[i].first.Before(list[j].first)
		}
		return list[i].id < list[j].id
	})

	for _, in := range list {
		if err := writer.Write([]string{
			in.id,
			in.name,
			in.agent,
			in.first.UTC().Format(time.RFC3339),
			in.last.UTC().Format(time.RFC3339),
			strconv.Itoa(in.actions),
			strconv.Itoa(in.failures),
			strconv.Itoa(in.maxStage),
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
