// Package ledger provides SQLite-backed cost accounting for backend calls.
// Every completed LLM request appends one row; summaries by backend feed the
// routing layer's usage advice.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"advisor/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS llm_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	backend TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	duration_ms INTEGER NOT NULL,
	status TEXT NOT NULL,
	error_type TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_llm_calls_run ON llm_calls(run_id);
CREATE INDEX IF NOT EXISTS idx_llm_calls_backend ON llm_calls(backend);
`

// Call is one recorded backend invocation.
type Call struct {
	RunID            string
	Backend          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	Duration         time.Duration
	Status           string
	ErrorType        string
}

// BackendSummary aggregates recorded calls for one backend.
type BackendSummary struct {
	Backend          string
	Calls            int64
	PromptTokens     int64
	CompletionTokens int64
	CostUSD          float64
}

// Ledger is an append-only call log over a SQLite database.
type Ledger struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (or creates) the ledger database at path and ensures the schema
// exists. SQLite supports a single writer, so the pool is capped at one
// connection.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Ledger{
		db:     db,
		logger: logx.NewLogger("ledger"),
	}, nil
}

// RecordCall appends one call row.
func (l *Ledger) RecordCall(ctx context.Context, call Call) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO llm_calls
		 (run_id, backend, model, prompt_tokens, completion_tokens, cost_usd, duration_ms, status, error_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.RunID, call.Backend, call.Model,
		call.PromptTokens, call.CompletionTokens, call.CostUSD,
		call.Duration.Milliseconds(), call.Status, call.ErrorType,
	)
	if err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	return nil
}

// SummarizeByBackend aggregates all recorded calls grouped by backend,
// ordered by total cost descending.
func (l *Ledger) SummarizeByBackend(ctx context.Context) ([]BackendSummary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT backend,
		        COUNT(*),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(completion_tokens), 0),
		        COALESCE(SUM(cost_usd), 0)
		 FROM llm_calls
		 GROUP BY backend
		 ORDER BY SUM(cost_usd) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query backend summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []BackendSummary
	for rows.Next() {
		var s BackendSummary
		if err := rows.Scan(&s.Backend, &s.Calls, &s.PromptTokens, &s.CompletionTokens, &s.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan backend summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read backend summaries: %w", err)
	}
	return summaries, nil
}

// RunCost returns the total recorded cost for one orchestration run.
func (l *Ledger) RunCost(ctx context.Context, runID string) (float64, error) {
	var cost float64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM llm_calls WHERE run_id = ?`, runID,
	).Scan(&cost)
	if err != nil {
		return 0, fmt.Errorf("failed to query run cost: %w", err)
	}
	return cost, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to close ledger database: %w", err)
	}
	return nil
}
