// Package telemetry turns completed actions into the structured record
// stream consumed by dataset builders, and persists it.
package telemetry

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
)

// Record is one completed action, successful or not.
type Record struct {
	ID          string    `json:"id"`
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	AgentID     string    `json:"agent_id"`
	Role        string    `json:"role"`
	Department  string    `json:"department"`
	State       string    `json:"state"`
	Target      string    `json:"target"`
	Operation   string    `json:"operation"`
	Payload     string    `json:"payload"`
	Sensitivity string    `json:"sensitivity"`
	Complexity  string    `json:"complexity"`
	Tier        string    `json:"tier"`
	Outcome     string    `json:"outcome"`
	Success     bool      `json:"success"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	LatencyMS   int64     `json:"latency_ms"`
	Attempts    int       `json:"attempts"`
	Retries     int       `json:"retries"`
	ScenarioID  string    `json:"scenario_id,omitempty"`
	Scenario    string    `json:"scenario,omitempty"`
	Stage       *int      `json:"stage,omitempty"`
}

// NewRecord builds the record for a and its outcome.
func NewRecord(a action.Action, o action.Outcome) Record {
	r := Record{
		ID:          a.ID,
		Seq:         a.Seq,
		Timestamp:   a.SimTime,
		AgentID:     a.AgentID,
		Role:        string(a.Role),
		Department:  a.Department,
		State:       string(a.State),
		Target:      a.Target,
		Operation:   string(a.Operation),
		Payload:     a.Payload,
		Sensitivity: a.Sensitivity.String(),
		Complexity:  string(a.Complexity),
		Tier:        string(a.Tier),
		Outcome:     o.Label(),
		Success:     o.Success,
		LatencyMS:   o.LatencyMS(),
		Attempts:    o.Attempts,
		Retries:     o.Retries,
	}
	if !o.Success {
		r.ErrorKind = o.Label()
	}
	if a.ScenarioDriven() {
		stage := a.Stage
		r.ScenarioID = a.ScenarioID
		r.Scenario = a.ScenarioName
		r.Stage = &stage
	}
	return r
}

// Canonical sorts records by timestamp, then agent, then per-agent
// sequence. Two runs with the same seed produce the same canonical stream.
func Canonical(records []Record) []Record {
	out := append([]Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.AgentID != b.AgentID {
			return a.AgentID < b.AgentID
		}
		return a.Seq < b.Seq
	})
	return out
}

var csvHeader = []string{
	"id", "seq", "timestamp", "agent_id", "role", "department", "state", "target", "operation",
	"sensitivity", "complexity", "tier", "outcome", "latency_ms", "attempts", "retries",
	"scenario_id", "scenario", "stage", "payload",
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		stage := ""
		if r.Stage != nil {
			stage = strconv.Itoa(*r.Stage)
		}
		row := []string{
			r.ID,
			strconv.FormatUint(r.Seq, 10),
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.AgentID,
			r.Role,
			r.Department,
			r.State,
			r.Target,
			r.Operation,
			r.Sensitivity,
			r.Complexity,
			r.Tier,
			r.Outcome,
			strconv.FormatInt(r.LatencyMS, 10),
			strconv.Itoa(r.Attempts),
			strconv.Itoa(r.Retries),
			r.ScenarioID,
			r.Scenario,
			stage,
			r.Payload,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
