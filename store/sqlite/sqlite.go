// Package sqlite provides a durable run store backed by an embedded SQLite
// database. Run traces (tool log, citations, node timeline) are stored as
// JSON columns on a single agent_runs table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_runs (
	run_id     TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	answer     TEXT,
	structured TEXT,
	error      TEXT,
	iterations INTEGER NOT NULL DEFAULT 0,
	tool_log   TEXT,
	citations  TEXT,
	timeline   TEXT,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	ended_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_agent_runs_session ON agent_runs(session_id);
`

// Store persists run records in SQLite. Safe for concurrent use; the
// underlying *sql.DB serializes writers.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at the given path and ensures
// the schema exists. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate agent_runs: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateRun inserts a new record.
func (s *Store) CreateRun(ctx context.Context, rec store.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_runs(run_id,session_id,user_id,status,iterations,created_at) VALUES (?,?,?,?,?,?)`,
		rec.RunID, rec.SessionID, rec.UserID, string(rec.Status), rec.Iterations, rec.CreatedAt)
	return err
}

// UpdateRun transitions the status of an existing run; a non-nil state also
// refreshes the persisted trace.
func (s *Store) UpdateRun(ctx context.Context, runID string, status store.Status, st *core.RunState) error {
	var res sql.Result
	var err error
	if st == nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE agent_runs SET status=?, started_at=COALESCE(started_at, CASE WHEN ?='running' THEN ? END) WHERE run_id=?`,
			string(status), string(status), time.Now().UTC(), runID)
	} else {
		toolLog, citations, timeline, encErr := encodeTrace(st.Invocations, st.Citations, st.NodeEvents)
		if encErr != nil {
			return encErr
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE agent_runs SET status=?, iterations=?, tool_log=?, citations=?, timeline=?,
			 started_at=COALESCE(started_at, CASE WHEN ?='running' THEN ? END) WHERE run_id=?`,
			string(status), st.Iterations, toolLog, citations, timeline,
			string(status), time.Now().UTC(), runID)
	}
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// CompleteRun writes the terminal record for an existing run.
func (s *Store) CompleteRun(ctx context.Context, rec store.Record) error {
	toolLog, citations, timeline, err := encodeTrace(rec.Invocations, rec.Citations, rec.NodeEvents)
	if err != nil {
		return err
	}
	var structured any
	if rec.Structured != nil {
		raw, err := json.Marshal(rec.Structured)
		if err != nil {
			return fmt.Errorf("encode structured output: %w", err)
		}
		structured = string(raw)
	}
	ended := rec.EndedAt
	if ended.IsZero() {
		ended = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_runs SET status=?, answer=?, structured=?, error=?, iterations=?,
		 tool_log=?, citations=?, timeline=?, ended_at=? WHERE run_id=?`,
		string(rec.Status), nullable(rec.Answer), structured, nullable(rec.Error),
		rec.Iterations, toolLog, citations, timeline, ended, rec.RunID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// GetRun fetches a record by run id.
func (s *Store) GetRun(ctx context.Context, runID string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id,session_id,user_id,status,COALESCE(answer,''),structured,COALESCE(error,''),
		 iterations,tool_log,citations,timeline,created_at,started_at,ended_at
		 FROM agent_runs WHERE run_id=?`, runID)

	var (
		rec                          store.Record
		status                       string
		structured                   sql.NullString
		toolLog, citations, timeline sql.NullString
		startedAt, endedAt           sql.NullTime
	)
	err := row.Scan(&rec.RunID, &rec.SessionID, &rec.UserID, &status, &rec.Answer, &structured,
		&rec.Error, &rec.Iterations, &toolLog, &citations, &timeline, &rec.CreatedAt, &startedAt, &endedAt)
	if err == sql.ErrNoRows {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	rec.Status = store.Status(status)
	if startedAt.Valid {
		rec.StartedAt = startedAt.Time
	}
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	if structured.Valid && structured.String != "" {
		var v any
		if err := json.Unmarshal([]byte(structured.String), &v); err != nil {
			return store.Record{}, fmt.Errorf("decode structured output: %w", err)
		}
		rec.Structured = v
	}
	if err := decodeJSON(toolLog, &rec.Invocations); err != nil {
		return store.Record{}, fmt.Errorf("decode tool log: %w", err)
	}
	if err := decodeJSON(citations, &rec.Citations); err != nil {
		return store.Record{}, fmt.Errorf("decode citations: %w", err)
	}
	if err := decodeJSON(timeline, &rec.NodeEvents); err != nil {
		return store.Record{}, fmt.Errorf("decode timeline: %w", err)
	}
	return rec, nil
}

func encodeTrace(invs []core.ToolInvocation, cits []core.Citation, evs []core.NodeEvent) (any, any, any, error) {
	toolLog, err := encodeJSON(invs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode tool log: %w", err)
	}
	citations, err := encodeJSON(cits)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode citations: %w", err)
	}
	timeline, err := encodeJSON(evs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode timeline: %w", err)
	}
	return toolLog, citations, timeline, nil
}

func encodeJSON[T any](items []T) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func decodeJSON[T any](col sql.NullString, dst *[]T) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkAffected(res sql.Result) error {
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
