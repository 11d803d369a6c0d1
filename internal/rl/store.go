package rl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/covergen/api/schemas"
)

// MemoryStore keeps the table in process memory. It is used in tests and
// when persistence is disabled.
type MemoryStore struct {
	mu    sync.RWMutex
	table schemas.QTable
	saves int
}

// NewMemoryStore returns a store seeded with initial, which may be nil.
func NewMemoryStore(initial schemas.QTable) *MemoryStore {
	s := &MemoryStore{}
	if initial != nil {
		s.table = initial.Clone()
	}
	return s
}

func (s *MemoryStore) Load(_ context.Context) (schemas.QTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return nil, nil
	}
	return s.table.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, t schemas.QTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t.Clone()
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *MemoryStore) Close() error { return nil }

// FileStore persists the table as indented JSON of the form
// {"state": {"action": value}}.
type FileStore struct {
	path string
}

// NewFileStore expands a leading ~ in path and returns a file-backed store.
func NewFileStore(path string) (*FileStore, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand Q-table path %q: %w", path, err)
	}
	return &FileStore{path: expanded}, nil
}

// Path returns the expanded file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the table. A missing file yields an empty table; a corrupt file
// is reported so the caller can decide to start empty.
func (s *FileStore) Load(_ context.Context) (schemas.QTable, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read Q-table: %w", err)
	}
	var t schemas.QTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse Q-table %s: %w", s.path, err)
	}
	return t, nil
}

// Save writes the table through a temp file and rename so readers never see
// a partial document.
func (s *FileStore) Save(_ context.Context, t schemas.QTable) error {
	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode Q-table: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create Q-table directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".q_table-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp Q-table: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write Q-table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp Q-table: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace Q-table: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
