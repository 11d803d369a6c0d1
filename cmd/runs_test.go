package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/mocks"
)

func historyReturning(hs schemas.HistoryStore, err error) historyInitializer {
	return func(context.Context, *config.Config, *zap.Logger) (schemas.HistoryStore, func(), error) {
		if err != nil {
			return nil, nil, err
		}
		return hs, func() {}, nil
	}
}

func TestRunRunsList(t *testing.T) {
	logger := zaptest.NewLogger(t)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	runs := []schemas.RunRecord{
		{ID: "run-2", Mode: schemas.RunModeGenetic, Status: "Completed", BestScore: 80, Evaluations: 13, StartedAt: started, FinishedAt: started.Add(90 * time.Second)},
		{ID: "run-1", Mode: schemas.RunModeAgent, Status: "Perfect", BestScore: 100, Evaluations: 2, StartedAt: started.Add(-time.Hour), FinishedAt: started.Add(-time.Hour + time.Minute)},
	}

	t.Run("Text", func(t *testing.T) {
		hs := new(mocks.MockHistoryStore)
		hs.On("ListRuns", mock.Anything, 5).Return(runs, nil)

		var out bytes.Buffer
		opts := runsListOptions{Limit: 5, Format: formatText}
		require.NoError(t, runRunsList(context.Background(), newTestConfig(t), logger, opts, &out, historyReturning(hs, nil)))

		text := out.String()
		assert.Contains(t, text, "ID")
		assert.Contains(t, text, "run-2")
		assert.Contains(t, text, "genetic")
		assert.Contains(t, text, "1m30s")
		hs.AssertExpectations(t)
	})

	t.Run("YAML", func(t *testing.T) {
		hs := new(mocks.MockHistoryStore)
		hs.On("ListRuns", mock.Anything, 20).Return(runs, nil)

		var out bytes.Buffer
		opts := runsListOptions{Limit: 20, Format: formatYAML}
		require.NoError(t, runRunsList(context.Background(), newTestConfig(t), logger, opts, &out, historyReturning(hs, nil)))

		var got []schemas.RunRecord
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "run-1", got[1].ID)
		assert.Equal(t, schemas.RunModeAgent, got[1].Mode)
		assert.True(t, got[0].StartedAt.Equal(started))
	})

	t.Run("Empty", func(t *testing.T) {
		hs := new(mocks.MockHistoryStore)
		hs.On("ListRuns", mock.Anything, 20).Return(nil, nil)

		var out bytes.Buffer
		require.NoError(t, runRunsList(context.Background(), newTestConfig(t), logger, runsListOptions{Limit: 20}, &out, historyReturning(hs, nil)))
		assert.Equal(t, "No runs recorded.\n", out.String())
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		err := runRunsList(context.Background(), newTestConfig(t), logger, runsListOptions{Limit: 20}, &bytes.Buffer{},
			historyReturning(nil, errors.New("database.url is not configured")))
		assert.ErrorContains(t, err, "failed to open run history")
	})

	t.Run("QueryFailure", func(t *testing.T) {
		hs := new(mocks.MockHistoryStore)
		hs.On("ListRuns", mock.Anything, 20).Return(nil, errors.New("relation \"runs\" does not exist"))
		err := runRunsList(context.Background(), newTestConfig(t), logger, runsListOptions{Limit: 20}, &bytes.Buffer{}, historyReturning(hs, nil))
		assert.ErrorContains(t, err, "failed to list runs")
	})
}
