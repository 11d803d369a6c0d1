package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/agent"
	"github.com/xkilldash9x/covergen/internal/metrics"
	"github.com/xkilldash9x/covergen/internal/mocks"
	"github.com/xkilldash9x/covergen/internal/rl"
	"github.com/xkilldash9x/covergen/internal/service"
)

type agentFixture struct {
	factory *MockComponentFactory
	gen     *mocks.MockGenerator
	ev      *mocks.MockEvaluator
	history *mocks.MockHistoryStore
	table   *rl.MemoryStore
}

func newAgentFixture() *agentFixture {
	f := &agentFixture{
		factory: new(MockComponentFactory),
		gen:     new(mocks.MockGenerator),
		ev:      new(mocks.MockEvaluator),
		history: new(mocks.MockHistoryStore),
		table:   rl.NewMemoryStore(nil),
	}
	rec := metrics.NewRecorder()
	comps := &service.Components{
		Generator:  f.gen,
		Evaluator:  metrics.InstrumentEvaluator(f.ev, rec),
		Recorder:   rec,
		TableStore: f.table,
		History:    f.history,
	}
	f.factory.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(comps, nil)
	return f
}

func TestRunAgent_PerfectOnFirstAttempt(t *testing.T) {
	f := newAgentFixture()
	cfg := newTestConfig(t)
	sourcePath := writeTempFile(t, "app.go", testSource)

	f.gen.On("Generate", mock.Anything, mock.Anything).Return(testCandidate, nil).Once()
	f.ev.On("Evaluate", mock.Anything, testSource, testCandidate).
		Return(&schemas.CoverageResult{Success: true, CoveragePercent: 100}, nil).Once()
	f.history.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *schemas.RunRecord) bool {
		return r.Mode == schemas.RunModeAgent &&
			r.Status == agent.StatusPerfect &&
			r.BestScore == 100 &&
			r.Evaluations == 1 &&
			len(r.Steps) == 1 && r.Steps[0].Code == testCandidate
	})).Return(nil).Once()

	var out bytes.Buffer
	opts := agentOptions{SourcePath: sourcePath, Format: formatJSON}
	require.NoError(t, runAgent(context.Background(), cfg, zaptest.NewLogger(t), opts, &out, f.factory))

	var report agentReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, agent.StatePerfect, report.Final.State)
	assert.Len(t, report.History, 1)
	assert.InDelta(t, 110.0, report.Final.Reward, 1e-9)

	assert.Equal(t, 1, f.table.Saves(), "Q-table is persisted")
	persisted, err := f.table.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, persisted, string(agent.StateInitial))

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `covergen_oracle_evaluations_total{outcome="pass"} 1`)

	f.gen.AssertExpectations(t)
	f.ev.AssertExpectations(t)
	f.history.AssertExpectations(t)
}

func TestRunAgent_MaxRetriesOverride(t *testing.T) {
	f := newAgentFixture()
	cfg := newTestConfig(t)
	cfg.History.Enabled = true
	sourcePath := writeTempFile(t, "app.go", testSource)

	f.gen.On("Generate", mock.Anything, mock.Anything).Return(testCandidate, nil)
	f.ev.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).
		Return(&schemas.CoverageResult{Success: true, CoveragePercent: 40, MissedLines: []int{4}}, nil)
	f.history.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("history unavailable"))

	var out bytes.Buffer
	opts := agentOptions{SourcePath: sourcePath, Format: formatText, MaxRetries: 2}
	require.NoError(t, runAgent(context.Background(), cfg, zaptest.NewLogger(t), opts, &out, f.factory),
		"history failures are logged, not returned")

	f.gen.AssertNumberOfCalls(t, "Generate", 2)
	assert.Equal(t, 5, cfg.Agent.MaxRetries, "the caller's config is not modified")

	text := out.String()
	assert.Contains(t, text, "ATTEMPT")
	assert.Contains(t, text, "Final state: COVERAGE_LOW")
	assert.Contains(t, text, "Missed lines: [4]")
	assert.Contains(t, text, testCandidate)
}

func TestRunAgent_Cancelled(t *testing.T) {
	f := newAgentFixture()
	cfg := newTestConfig(t)
	sourcePath := writeTempFile(t, "app.go", testSource)

	f.history.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *schemas.RunRecord) bool {
		return r.Status == runStatusCancelled && len(r.Steps) == 0
	})).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runAgent(ctx, cfg, zaptest.NewLogger(t), agentOptions{SourcePath: sourcePath}, &out, f.factory)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out.String(), "No attempts were made.")
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	f.history.AssertExpectations(t)
}

func TestRunAgent_Errors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	sourcePath := writeTempFile(t, "app.go", testSource)

	t.Run("MissingSource", func(t *testing.T) {
		err := runAgent(context.Background(), newTestConfig(t), logger, agentOptions{}, &bytes.Buffer{}, new(MockComponentFactory))
		assert.ErrorContains(t, err, "--source is required")
	})

	t.Run("UnreadableSource", func(t *testing.T) {
		opts := agentOptions{SourcePath: sourcePath + ".missing"}
		err := runAgent(context.Background(), newTestConfig(t), logger, opts, &bytes.Buffer{}, new(MockComponentFactory))
		assert.ErrorContains(t, err, "failed to read source file")
	})

	t.Run("BadFormat", func(t *testing.T) {
		opts := agentOptions{SourcePath: sourcePath, Format: "xml"}
		err := runAgent(context.Background(), newTestConfig(t), logger, opts, &bytes.Buffer{}, new(MockComponentFactory))
		assert.ErrorContains(t, err, "unsupported output format")
	})

	t.Run("FactoryFailure", func(t *testing.T) {
		factory := new(MockComponentFactory)
		factory.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("no api key"))
		err := runAgent(context.Background(), newTestConfig(t), logger, agentOptions{SourcePath: sourcePath}, &bytes.Buffer{}, factory)
		assert.ErrorContains(t, err, "failed to initialize components: no api key")
	})
}
