// Package store persists Q-tables and run history in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
)

// DBPool abstracts *pgxpool.Pool so the store can be driven by pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const defaultListLimit = 20

const schemaDDL = `
CREATE TABLE IF NOT EXISTS q_values (
    state  TEXT NOT NULL,
    action TEXT NOT NULL,
    value  DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (state, action)
);
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    mode        TEXT NOT NULL,
    status      TEXT NOT NULL,
    best_score  DOUBLE PRECISION NOT NULL,
    evaluations INTEGER NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS run_steps (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx    INTEGER NOT NULL,
    label  TEXT NOT NULL,
    status TEXT NOT NULL,
    score  DOUBLE PRECISION NOT NULL,
    code   TEXT NOT NULL,
    PRIMARY KEY (run_id, idx)
);
`

var (
	qValueColumns  = []string{"state", "action", "value"}
	runStepColumns = []string{"run_id", "idx", "label", "status", "score", "code"}
)

// Store is the PostgreSQL backend for the Q-table and run history. The pool
// is owned by the caller.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables the store needs when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load reads every Q-value row. An empty table yields nil.
func (s *Store) Load(ctx context.Context) (schemas.QTable, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, action, value FROM q_values`)
	if err != nil {
		return nil, fmt.Errorf("failed to query q_values: %w", err)
	}
	defer rows.Close()

	var table schemas.QTable
	for rows.Next() {
		var state, action string
		var value float64
		if err := rows.Scan(&state, &action, &value); err != nil {
			return nil, fmt.Errorf("failed to scan q_value row: %w", err)
		}
		if table == nil {
			table = make(schemas.QTable)
		}
		row := table[state]
		if row == nil {
			row = make(map[string]float64)
			table[state] = row
		}
		row[action] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return table, nil
}

// Save replaces the stored table with t inside one transaction.
func (s *Store) Save(ctx context.Context, t schemas.QTable) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM q_values`); err != nil {
			return fmt.Errorf("failed to clear q_values: %w", err)
		}
		rows := qTableRows(t)
		if len(rows) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"q_values"}, qValueColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy q_values: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied q_values count: expected %d, got %d", len(rows), n)
		}
		return nil
	})
}

// qTableRows flattens t in state then action order.
func qTableRows(t schemas.QTable) [][]any {
	states := make([]string, 0, len(t))
	for state := range t {
		states = append(states, state)
	}
	sort.Strings(states)

	var rows [][]any
	for _, state := range states {
		actions := make([]string, 0, len(t[state]))
		for action := range t[state] {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		for _, action := range actions {
			rows = append(rows, []any{state, action, t[state][action]})
		}
	}
	return rows
}

// Close is a no-op; the pool is closed by whoever created it.
func (s *Store) Close() error { return nil }

// SaveRun inserts a run and its steps.
func (s *Store) SaveRun(ctx context.Context, run *schemas.RunRecord) error {
	if run == nil || run.ID == "" {
		return errors.New("run record requires an ID")
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO runs (id, mode, status, best_score, evaluations, started_at, finished_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			run.ID, string(run.Mode), run.Status, run.BestScore, run.Evaluations,
			run.StartedAt.UTC(), run.FinishedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		if len(run.Steps) == 0 {
			return nil
		}

		rows := make([][]any, len(run.Steps))
		for i, st := range run.Steps {
			rows[i] = []any{run.ID, st.Index, st.Label, st.Status, st.Score, st.Code}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"run_steps"}, runStepColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy run steps: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied run steps count: expected %d, got %d", len(rows), n)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug("Run persisted.", zap.String("run_id", run.ID), zap.Int("steps", len(run.Steps)))
	return nil
}

// ListRuns returns the most recent runs without their steps. A non-positive
// limit falls back to 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
        SELECT id, mode, status, best_score, evaluations, started_at, finished_at
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.RunRecord
	for rows.Next() {
		var r schemas.RunRecord
		var mode string
		if err := rows.Scan(&r.ID, &mode, &r.Status, &r.BestScore, &r.Evaluations, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Mode = schemas.RunMode(mode)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// inTx runs fn in a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
