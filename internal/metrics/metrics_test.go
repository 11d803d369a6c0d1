package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/mocks"
	"github.com/xkilldash9x/covergen/internal/oracle"
)

func TestInstrumentEvaluator(t *testing.T) {
	r := NewRecorder()
	ev := new(mocks.MockEvaluator)
	ev.On("Evaluate", mock.Anything, "src", "pass").Return(&schemas.CoverageResult{Success: true, CoveragePercent: 75}, nil)
	ev.On("Evaluate", mock.Anything, "src", "fail").Return(&schemas.CoverageResult{Success: false}, nil)
	ev.On("Evaluate", mock.Anything, "src", "broken").Return(nil, &oracle.EvalError{Kind: oracle.KindNoReport})
	ev.On("Evaluate", mock.Anything, "src", "weird").Return(nil, errors.New("boom"))

	wrapped := InstrumentEvaluator(ev, r)
	ctx := context.Background()
	for _, test := range []string{"pass", "pass", "fail", "broken", "weird"} {
		_, _ = wrapped.Evaluate(ctx, "src", test)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(r.evaluations.WithLabelValues("pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.evaluations.WithLabelValues("fail")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.evaluations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.evaluationErrors.WithLabelValues("no_report")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.evaluationErrors.WithLabelValues("other")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.coverage))
	ev.AssertNumberOfCalls(t, "Evaluate", 5)
}

func TestInstrumentEvaluator_NilRecorderPassesThrough(t *testing.T) {
	ev := new(mocks.MockEvaluator)
	assert.Same(t, ev, InstrumentEvaluator(ev, nil))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveStep("STANDARD", "PERFECT", 110)
		r.ObserveGeneration(50)
		r.ObserveEvaluation(0, nil, errors.New("x"))
		assert.NoError(t, r.WriteTextfile("ignored.prom"))
	})
}

func TestAgentAndGeneticCollectors(t *testing.T) {
	r := NewRecorder()
	r.ObserveStep("EXPAND", "COVERAGE_LOW", 20)
	r.ObserveStep("EXPAND", "COVERAGE_LOW", -2)
	r.ObserveGeneration(40)
	r.ObserveGeneration(65.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.agentSteps.WithLabelValues("EXPAND", "COVERAGE_LOW")))
	assert.Equal(t, 65.5, testutil.ToFloat64(r.generationBest))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.generations))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveGeneration(80)
	path := filepath.Join(t.TempDir(), "covergen.prom")

	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "covergen_genetic_best_fitness 80")
}
