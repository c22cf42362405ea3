package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRecorder appends records to a SQLite table.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder opens the database at path in WAL mode and creates the
// records table.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteRecorder{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteRecorder) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		ts TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		role TEXT NOT NULL,
		department TEXT,
		state TEXT,
		target TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload TEXT,
		sensitivity TEXT,
		complexity TEXT,
		tier TEXT,
		outcome TEXT NOT NULL,
		success INTEGER NOT NULL,
		error_kind TEXT,
		latency_ms INTEGER,
		attempts INTEGER,
		retries INTEGER,
		scenario_id TEXT,
		scenario TEXT,
		stage INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts, agent_id, seq);
	CREATE INDEX IF NOT EXISTS idx_records_scenario ON records(scenario_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}
	return nil
}

// Record implements Recorder.
func (s *SQLiteRecorder) Record(ctx context.Context, r Record) error {
	var stage sql.NullInt64
	if r.Stage != nil {
		stage = sql.NullInt64{Int64: int64(*r.Stage), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (
			id, seq, ts, agent_id, role, department, state, target, operation, payload,
			sensitivity, complexity, tier, outcome, success, error_kind, latency_ms,
			attempts, retries, scenario_id, scenario, stage
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Seq, r.Timestamp.UTC().Format(tsLayout), r.AgentID, r.Role, r.Department, r.State,
		r.Target, r.Operation, r.Payload, r.Sensitivity, r.Complexity, r.Tier, r.Outcome, r.Success,
		r.ErrorKind, r.LatencyMS, r.Attempts, r.Retries, r.ScenarioID, r.Scenario, stage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
	}
	return nil
}

// Filter narrows Query.
type Filter struct {
	AgentID  string
	Scenario string
	Limit    int
}

// Query returns records in canonical order.
func (s *SQLiteRecorder) Query(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Scenario != "" {
		where = append(where, "scenario = ?")
		args = append(args, f.Scenario)
	}

	q := `SELECT id, seq, ts, agent_id, role, department, state, target, operation, payload,
		sensitivity, complexity, tier, outcome, success, error_kind, latency_ms,
		attempts, retries, scenario_id, scenario, stage FROM records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts, agent_id, seq"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r     Record
			ts    string
			stage sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Seq, &ts, &r.AgentID, &r.Role, &r.Department, &r.State, &r.Target,
			&r.Operation, &r.Payload, &r.Sensitivity, &r.Complexity, &r.Tier, &r.Outcome, &r.Success,
			&r.ErrorKind, &r.LatencyMS, &r.Attempts, &r.Retries, &r.ScenarioID, &r.Scenario, &stage); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if r.Timestamp, err = time.Parse(tsLayout, ts); err != nil {
			return nil, fmt.Errorf("record %s: bad timestamp %q: %w", r.ID, ts, err)
		}
		if stage.Valid {
			v := int(stage.Int64)
			r.Stage = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *SQLiteRecorder) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}
