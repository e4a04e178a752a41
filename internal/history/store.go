package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/strrl/statement-agent/internal/db"
)

type RunStats struct {
	RunID     string
	Target    string
	First     time.Time
	Last      time.Time
	Messages  int
	Writes    int
	Tests     int
	Phase     string
	Passed    bool
	FinalTest string
}

type ToolCount struct {
	Tool  string
	Calls int
}

// Store queries every run log under a directory.
type Store struct {
	db  *sql.DB
	dir string
}

func NewStore(conn *sql.DB, dir string) *Store {
	return &Store{db: conn, dir: dir}
}

func (s *Store) pattern() string {
	return filepath.Join(s.dir, "*.jsonl")
}

// source returns the read_json table expression, or "" when there are no
// logs yet (read_json fails on an empty glob).
func (s *Store) source() (string, error) {
	matches, err := filepath.Glob(s.pattern())
	if err != nil {
		return "", fmt.Errorf("failed to list run logs: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	if err := db.EnsureJSON(s.db); err != nil {
		return "", err
	}
	return fmt.Sprintf(`read_json(%s,
			format = 'newline_delimited',
			union_by_name = true,
			ignore_errors = true
		)`, db.QuoteLiteral(s.pattern())), nil
}

// ListRuns returns per-run statistics, newest first. An empty target
// matches every run.
func (s *Store) ListRuns(ctx context.Context, target string) ([]RunStats, error) {
	src, err := s.source()
	if err != nil || src == "" {
		return nil, err
	}

	where, args := targetFilter(target)
	query := fmt.Sprintf(`
		SELECT
			CAST(run_id AS VARCHAR) as run_id,
			CAST(max(target) AS VARCHAR) as target,
			CAST(min(timestamp) AS VARCHAR) as first,
			CAST(max(timestamp) AS VARCHAR) as last,
			count(*) FILTER (WHERE kind = 'message') as messages,
			count(*) FILTER (WHERE kind = 'message' AND role = 'tool' AND tool = 'write_parser_code') as writes,
			count(*) FILTER (WHERE kind = 'message' AND role = 'tool' AND tool = 'run_test') as tests,
			COALESCE(CAST(max(phase) FILTER (WHERE kind = 'outcome') AS VARCHAR), '') as phase,
			COALESCE(bool_or(passed) FILTER (WHERE kind = 'outcome'), false) as passed,
			COALESCE(CAST(max(final_test) FILTER (WHERE kind = 'outcome') AS VARCHAR), '') as final_test
		FROM %s
		WHERE run_id IS NOT NULL %s
		GROUP BY run_id
		ORDER BY min(timestamp) DESC
	`, src, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunStats
	for rows.Next() {
		var (
			run         RunStats
			first, last sql.NullString
		)
		if err := rows.Scan(&run.RunID, &run.Target, &first, &last,
			&run.Messages, &run.Writes, &run.Tests, &run.Phase, &run.Passed, &run.FinalTest); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if first.Valid {
			run.First = parseTimestamp(first.String)
		}
		if last.Valid {
			run.Last = parseTimestamp(last.String)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return runs, nil
}

// ToolStats counts tool results per tool name across runs.
func (s *Store) ToolStats(ctx context.Context, target string) ([]ToolCount, error) {
	src, err := s.source()
	if err != nil || src == "" {
		return nil, err
	}

	where, args := targetFilter(target)
	query := fmt.Sprintf(`
		SELECT
			CAST(tool AS VARCHAR) as tool,
			count(*) as calls
		FROM %s
		WHERE kind = 'message' AND role = 'tool' AND tool IS NOT NULL AND tool != '' %s
		GROUP BY tool
		ORDER BY calls DESC, tool ASC
	`, src, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool stats: %w", err)
	}
	defer rows.Close()

	var counts []ToolCount
	for rows.Next() {
		var c ToolCount
		if err := rows.Scan(&c.Tool, &c.Calls); err != nil {
			return nil, fmt.Errorf("failed to scan tool stats: %w", err)
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return counts, nil
}

func targetFilter(target string) (string, []any) {
	if target == "" {
		return "", nil
	}
	return "AND target = $1", []any{target}
}

var timestampLayouts = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

// parseTimestamp accepts both the logged form and DuckDB's rendering of an
// auto-detected TIMESTAMP column.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
