package rl

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/mitchellh/go-homedir"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/covergen/api/schemas"
)

const createQValuesSQLite = `
CREATE TABLE IF NOT EXISTS q_values (
	state  TEXT NOT NULL,
	action TEXT NOT NULL,
	value  REAL NOT NULL,
	PRIMARY KEY (state, action)
)`

// SQLiteStore keeps the table in a local SQLite database, one row per
// (state, action) pair.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand sqlite path %q: %w", path, err)
	}
	db, err := sql.Open("sqlite", expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createQValuesSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create q_values table: %w", err)
	}
	return &SQLiteStore{path: expanded, db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (schemas.QTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT state, action, value FROM q_values`)
	if err != nil {
		return nil, fmt.Errorf("failed to query q_values: %w", err)
	}
	defer rows.Close()

	t := make(schemas.QTable)
	for rows.Next() {
		var state, action string
		var value float64
		if err := rows.Scan(&state, &action, &value); err != nil {
			return nil, fmt.Errorf("failed to scan q_value row: %w", err)
		}
		if t[state] == nil {
			t[state] = make(map[string]float64)
		}
		t[state][action] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return t, nil
}

// Save replaces every stored row with the contents of t in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, t schemas.QTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after a successful Commit returns sql.ErrTxDone, which is fine.
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM q_values`); err != nil {
		return fmt.Errorf("failed to clear q_values: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO q_values (state, action, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for state, row := range t {
		for action, value := range row {
			if _, err := stmt.ExecContext(ctx, state, action, value); err != nil {
				return fmt.Errorf("failed to insert q_value (%s, %s): %w", state, action, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
