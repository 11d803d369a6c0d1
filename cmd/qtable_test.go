package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/mocks"
	"github.com/xkilldash9x/covergen/internal/rl"
)

func storeReturning(ts rl.TableStore, closed *bool) tableStoreInitializer {
	return func(context.Context, *config.Config, *zap.Logger) (rl.TableStore, func(), error) {
		return ts, func() {
			if closed != nil {
				*closed = true
			}
		}, nil
	}
}

var learnedTable = schemas.QTable{
	"STATE_INITIAL": {"STANDARD": 1.5, "SIMPLIFY": 0, "EXPAND": -0.25, "EDGE_CASE": 0},
	"PERFECT":       {"STANDARD": 0, "SIMPLIFY": 0, "EXPAND": 0, "EDGE_CASE": 11, "LEGACY": 2},
}

func TestRunQTableShow(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Text", func(t *testing.T) {
		closed := false
		var out bytes.Buffer
		require.NoError(t, runQTableShow(context.Background(), newTestConfig(t), logger, formatText, &out,
			storeReturning(rl.NewMemoryStore(learnedTable), &closed)))
		assert.True(t, closed, "the store is released")

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, []string{"STATE", "STANDARD", "SIMPLIFY", "EXPAND", "EDGE_CASE", "LEGACY"}, strings.Fields(lines[0]))
		assert.Equal(t, []string{"PERFECT", "0.000", "0.000", "0.000", "11.000", "2.000"}, strings.Fields(lines[1]))
		assert.Equal(t, []string{"STATE_INITIAL", "1.500", "0.000", "-0.250", "0.000", "0.000"}, strings.Fields(lines[2]))
	})

	t.Run("JSON", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runQTableShow(context.Background(), newTestConfig(t), logger, formatJSON, &out,
			storeReturning(rl.NewMemoryStore(learnedTable), nil)))

		var got schemas.QTable
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, learnedTable, got)
	})

	t.Run("Empty", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runQTableShow(context.Background(), newTestConfig(t), logger, formatText, &out,
			storeReturning(rl.NewMemoryStore(nil), nil)))
		assert.Equal(t, "Q-table is empty.\n", out.String())
	})

	t.Run("LoadFailure", func(t *testing.T) {
		ts := new(mocks.MockTableStore)
		ts.On("Load", mock.Anything).Return(nil, errors.New("corrupt"))
		err := runQTableShow(context.Background(), newTestConfig(t), logger, formatText, &bytes.Buffer{}, storeReturning(ts, nil))
		assert.ErrorContains(t, err, "failed to load Q-table: corrupt")
	})
}

func TestRunQTableReset(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("RequiresConfirmation", func(t *testing.T) {
		store := rl.NewMemoryStore(learnedTable)
		err := runQTableReset(context.Background(), newTestConfig(t), logger, false, &bytes.Buffer{}, storeReturning(store, nil))
		assert.ErrorContains(t, err, "--yes")
		assert.Zero(t, store.Saves())
	})

	t.Run("Clears", func(t *testing.T) {
		store := rl.NewMemoryStore(learnedTable)
		var out bytes.Buffer
		require.NoError(t, runQTableReset(context.Background(), newTestConfig(t), logger, true, &out, storeReturning(store, nil)))

		got, err := store.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, "Q-table reset.\n", out.String())
	})
}

func TestInitializeTableStore_File(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Brain.Store = "file"
	cfg.Brain.Path = filepath.Join(t.TempDir(), "q_table.json")

	ts, cleanup, err := initializeTableStore(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, ts.Save(context.Background(), learnedTable))
	got, err := ts.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, learnedTable, got)
}

func TestInitializeTableStore_PostgresWithoutURL(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Brain.Store = "postgres"
	_, _, err := initializeTableStore(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "database.url is not configured")
}
