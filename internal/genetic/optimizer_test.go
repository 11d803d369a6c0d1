package genetic

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
)

const testSource = "package app\n\nfunc Abs(x int) int { if x < 0 { return -x }; return x }\n"

// fitnessFunc adapts a pure function to schemas.Evaluator.
type fitnessFunc func(code string) (*schemas.CoverageResult, error)

func (f fitnessFunc) Evaluate(_ context.Context, _, test string) (*schemas.CoverageResult, error) {
	return f(test)
}

// hashFitness gives every distinct code a stable coverage below 100.
func hashFitness(code string) (*schemas.CoverageResult, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return &schemas.CoverageResult{Success: true, CoveragePercent: float64(h.Sum32() % 100)}, nil
}

// appendOperator derives children by appending a tag; it is deterministic and
// safe for concurrent use.
type appendOperator struct {
	mutations  atomic.Int64
	crossovers atomic.Int64
	failWith   error
}

func (a *appendOperator) Apply(_ context.Context, kind MutationKind, candidate string) (string, error) {
	a.mutations.Add(1)
	if a.failWith != nil {
		return "", a.failWith
	}
	return candidate + "|" + string(kind), nil
}

func (a *appendOperator) Crossover(_ context.Context, x, y string) (string, error) {
	a.crossovers.Add(1)
	if a.failWith != nil {
		return "", a.failWith
	}
	return x + "+" + y[len(y)/2:], nil
}

func testGeneticConfig() config.GeneticConfig {
	return config.NewDefaultConfig().Genetic
}

func newOptimizer(t *testing.T, seed string, ev schemas.Evaluator, op *appendOperator, cfg config.GeneticConfig, rngSeed int64) *Optimizer {
	t.Helper()
	o, err := New(testSource, seed, ev, op, op, cfg, rand.New(rand.NewSource(rngSeed)), zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	op := &appendOperator{}
	rng := rand.New(rand.NewSource(1))

	_, err := New(testSource, "", nil, op, op, testGeneticConfig(), rng, logger)
	assert.Error(t, err)

	_, err = New(testSource, "", fitnessFunc(hashFitness), op, op, testGeneticConfig(), nil, logger)
	assert.Error(t, err)

	bad := testGeneticConfig()
	bad.Survivors = 10
	_, err = New(testSource, "", fitnessFunc(hashFitness), op, op, bad, rng, logger)
	assert.Error(t, err)

	o, err := New(testSource, "", fitnessFunc(hashFitness), op, op, testGeneticConfig(), rng, logger)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderSeed, o.seed)
}

func TestEvolve_ExactEvaluationCount(t *testing.T) {
	cfg := testGeneticConfig()
	cfg.PopulationSize = 5
	cfg.Generations = 4
	op := &appendOperator{}
	var evals atomic.Int64
	ev := fitnessFunc(func(code string) (*schemas.CoverageResult, error) {
		evals.Add(1)
		return &schemas.CoverageResult{Success: true, CoveragePercent: 10}, nil
	})

	o := newOptimizer(t, "seed", ev, op, cfg, 1)
	_, history, err := o.Evolve(context.Background())
	require.NoError(t, err)

	assert.Len(t, history, 4)
	want := cfg.PopulationSize + cfg.Generations*(cfg.PopulationSize-1)
	assert.Equal(t, want, o.TotalEvaluations())
	assert.Equal(t, int64(want), evals.Load())
	assert.Equal(t, int64(want-1), op.mutations.Load()+op.crossovers.Load(), "every child but the seed comes from an operator")
}

func TestEvolve_EarlyExitOnPerfectSeed(t *testing.T) {
	ev := fitnessFunc(func(code string) (*schemas.CoverageResult, error) {
		if code == "perfect" {
			return &schemas.CoverageResult{Success: true, CoveragePercent: 100}, nil
		}
		return &schemas.CoverageResult{Success: true, CoveragePercent: 50}, nil
	})
	cfg := testGeneticConfig()
	o := newOptimizer(t, "perfect", ev, &appendOperator{}, cfg, 1)

	best, history, err := o.Evolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Individual{Code: "perfect", Fitness: 100}, best)
	require.Len(t, history, 1)
	assert.Equal(t, GenerationRecord{Generation: 1, BestFitness: 100, BestCode: "perfect"}, history[0])
	assert.Equal(t, cfg.PopulationSize, o.TotalEvaluations(), "only the initial population is scored")
}

func TestEvolve_MonotoneBestFitness(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		cfg := testGeneticConfig()
		cfg.Generations = 6
		o := newOptimizer(t, "seed", fitnessFunc(hashFitness), &appendOperator{}, cfg, seed)

		best, history, err := o.Evolve(context.Background())
		require.NoError(t, err)
		for i := 1; i < len(history); i++ {
			assert.GreaterOrEqual(t, history[i].BestFitness, history[i-1].BestFitness, "rng seed %d, generation %d", seed, i+1)
		}
		assert.GreaterOrEqual(t, best.Fitness, history[len(history)-1].BestFitness)
	}
}

func TestEvolve_PenaltyAndClamping(t *testing.T) {
	ev := fitnessFunc(func(code string) (*schemas.CoverageResult, error) {
		if strings.Contains(code, "LOGIC_FLIP") {
			return nil, errors.New("no report")
		}
		return &schemas.CoverageResult{Success: false, CoveragePercent: 70}, nil
	})
	o := newOptimizer(t, "seed", ev, &appendOperator{}, testGeneticConfig(), 3)

	best, history, err := o.Evolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, -100.0, best.Fitness)
	for _, rec := range history {
		assert.Equal(t, 0.0, rec.BestFitness, "history clamps negative fitness")
	}
}

func TestEvolve_OperatorFailuresCountAsEvaluations(t *testing.T) {
	op := &appendOperator{failWith: errors.New("model unavailable")}
	var evals atomic.Int64
	ev := fitnessFunc(func(string) (*schemas.CoverageResult, error) {
		evals.Add(1)
		return &schemas.CoverageResult{Success: true, CoveragePercent: 30}, nil
	})
	cfg := testGeneticConfig()
	o := newOptimizer(t, "seed", ev, op, cfg, 1)

	best, _, err := o.Evolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Individual{Code: "seed", Fitness: 30}, best)
	assert.Equal(t, int64(1), evals.Load(), "only the seed reaches the oracle")
	assert.Equal(t, cfg.PopulationSize+cfg.Generations*(cfg.PopulationSize-1), o.TotalEvaluations())
}

func TestEvolve_CrossoverRateExtremes(t *testing.T) {
	for _, tc := range []struct {
		rate           float64
		wantCrossovers bool
	}{{0, false}, {1, true}} {
		cfg := testGeneticConfig()
		cfg.CrossoverRate = tc.rate
		op := &appendOperator{}
		o := newOptimizer(t, "seed", fitnessFunc(hashFitness), op, cfg, 5)

		_, _, err := o.Evolve(context.Background())
		require.NoError(t, err)

		initialMutants := int64(cfg.PopulationSize - 1)
		offspring := int64(cfg.Generations * (cfg.PopulationSize - 1))
		if tc.wantCrossovers {
			assert.Equal(t, offspring, op.crossovers.Load())
			assert.Equal(t, initialMutants, op.mutations.Load())
		} else {
			assert.Zero(t, op.crossovers.Load())
			assert.Equal(t, initialMutants+offspring, op.mutations.Load())
		}
	}
}

func TestEvolve_ParallelMatchesSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	run := func(parallelism int) (Individual, []GenerationRecord, int) {
		cfg := testGeneticConfig()
		cfg.PopulationSize = 6
		cfg.Generations = 4
		cfg.Parallelism = parallelism
		o := newOptimizer(t, "seed", fitnessFunc(hashFitness), &appendOperator{}, cfg, 99)
		best, history, err := o.Evolve(context.Background())
		require.NoError(t, err)
		return best, history, o.TotalEvaluations()
	}

	seqBest, seqHistory, seqEvals := run(1)
	parBest, parHistory, parEvals := run(4)

	assert.Equal(t, seqBest, parBest)
	assert.Equal(t, seqEvals, parEvals)
	if diff := cmp.Diff(seqHistory, parHistory); diff != "" {
		t.Errorf("parallel run diverged (-sequential +parallel):\n%s", diff)
	}
}

func TestEvolve_Cancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		o := newOptimizer(t, "seed", fitnessFunc(hashFitness), &appendOperator{}, testGeneticConfig(), 1)

		_, history, err := o.Evolve(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, history)
		assert.Zero(t, o.TotalEvaluations())
	})

	t.Run("between generations", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cfg := testGeneticConfig()
		cfg.Generations = 10

		var once sync.Once
		var calls atomic.Int64
		ev := fitnessFunc(func(code string) (*schemas.CoverageResult, error) {
			// Cancel while the first generation's offspring are being scored.
			if calls.Add(1) > int64(cfg.PopulationSize) {
				once.Do(cancel)
			}
			return hashFitness(code)
		})
		o := newOptimizer(t, "seed", ev, &appendOperator{}, cfg, 1)

		best, history, err := o.Evolve(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		require.Len(t, history, 1, "the generation in flight completes")
		assert.GreaterOrEqual(t, best.Fitness, history[0].BestFitness)
		assert.Equal(t, 2*cfg.PopulationSize-1, o.TotalEvaluations())
	})
}
