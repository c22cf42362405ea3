package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/catalog"
)

// SQLiteOptions configures a SQLiteSink.
type SQLiteOptions struct {
	// ReadOnlyRoles are refused every write operation.
	ReadOnlyRoles []behavior.Role
	// SeedRows is the number of rows inserted into each table on open.
	SeedRows int
	// Timeout bounds each statement. Zero means no bound.
	Timeout time.Duration
}

// SQLiteSink executes generated payloads against a sandbox database built
// from the catalog schema.
type SQLiteSink struct {
	db       *sql.DB
	readOnly map[behavior.Role]bool
	timeout  time.Duration
}

// NewSQLiteSink opens (or creates) the sandbox at path. An empty path or
// ":memory:" uses a private in-memory database.
func NewSQLiteSink(path string, cat *catalog.Catalog, opts SQLiteOptions) (*SQLiteSink, error) {
	memory := path == "" || path == ":memory:"
	dsn := path
	if memory {
		dsn = ":memory:"
	} else {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sandbox db: %w", err)
	}
	if memory {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sandbox db: %w", err)
	}
	if !memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &SQLiteSink{
		db:       db,
		readOnly: make(map[behavior.Role]bool, len(opts.ReadOnlyRoles)),
		timeout:  opts.Timeout,
	}
	for _, r := range opts.ReadOnlyRoles {
		s.readOnly[r] = true
	}

	if err := s.migrate(cat); err != nil {
		db.Close()
		return nil, fmt.Errorf("sandbox schema migration failed: %w", err)
	}
	if opts.SeedRows > 0 {
		if err := s.seed(cat, opts.SeedRows); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed sandbox: %w", err)
		}
	}
	return s, nil
}

func (s *SQLiteSink) migrate(cat *catalog.Catalog) error {
	for _, stmt := range cat.Schema() {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// seed fills each empty table with n predictable rows.
func (s *SQLiteSink) seed(cat *catalog.Catalog, n int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range cat.Entities() {
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM " + e.Name).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		cols := e.Columns[1:]
		names := make([]string, len(cols))
		marks := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
			marks[i] = "?"
		}
		stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			e.Name, strings.Join(names, ", "), strings.Join(marks, ", ")))
		if err != nil {
			return err
		}
		for row := 1; row <= n; row++ {
			args := make([]any, len(cols))
			for i, c := range cols {
				switch {
				case strings.HasPrefix(c.Type, "INTEGER"):
					args[i] = row
				case c.Type == "REAL":
					args[i] = float64(row) * 10.5
				default:
					args[i] = fmt.Sprintf("%s-%d", c.Name, row)
				}
			}
			if _, err := stmt.Exec(args...); err != nil {
				stmt.Close()
				return err
			}
		}
		stmt.Close()
	}
	return tx.Commit()
}

// Submit implements Sink. Reads are drained so the full query cost is
// paid; writes report rows affected in the outcome message.
func (s *SQLiteSink) Submit(ctx context.Context, a action.Action) (action.Outcome, error) {
	if s.readOnly[a.Role] && !a.Operation.ReadOnly() {
		return action.Failed(action.ErrPermission, 0, "role "+string(a.Role)+" is read-only"), nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var msg string
	var err error
	if a.Operation.ReadOnly() {
		var n int
		n, err = s.query(ctx, a.Payload)
		msg = fmt.Sprintf("%d rows", n)
	} else {
		var res sql.Result
		res, err = s.db.ExecContext(ctx, a.Payload)
		if err == nil {
			n, _ := res.RowsAffected()
			msg = fmt.Sprintf("%d rows affected", n)
		}
	}
	latency := time.Since(start)

	if err != nil {
		kind, transport := mapSQLiteError(err)
		if transport {
			return action.Outcome{Latency: latency}, NewError(kind, err)
		}
		return action.Failed(kind, latency, err.Error()), nil
	}
	out := action.Succeeded(latency)
	out.Message = msg
	return out, nil
}

func (s *SQLiteSink) query(ctx context.Context, q string) (int, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

// mapSQLiteError classifies a driver error. transport is true for
// failures the statement itself did not cause.
func mapSQLiteError(err error) (kind action.ErrorKind, transport bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return action.ErrTimeout, true
	}
	if errors.Is(err, context.Canceled) {
		return action.ErrCancelled, true
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return action.ErrInternal, false
	}
	switch se.Code {
	case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrTooBig:
		return action.ErrConstraint, false
	case sqlite3.ErrPerm, sqlite3.ErrAuth, sqlite3.ErrReadonly:
		return action.ErrPermission, false
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return action.ErrTimeout, true
	case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB:
		return action.ErrConnection, true
	case sqlite3.ErrError, sqlite3.ErrRange:
		return action.ErrSyntax, false
	default:
		return action.ErrInternal, false
	}
}

// DB exposes the sandbox for inspection.
func (s *SQLiteSink) DB() *sql.DB { return s.db }

// Close closes the sandbox.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
