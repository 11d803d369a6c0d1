// Package genetic evolves a population of candidate test files toward full
// statement coverage.
package genetic

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/metrics"
)

// Optimizer runs the generational loop with elitism.
type Optimizer struct {
	source     string
	seed       string
	evaluator  schemas.Evaluator
	mutator    Mutator
	recombiner Recombiner
	cfg        config.GeneticConfig
	rng        *rand.Rand
	logger     *zap.Logger
	recorder   *metrics.Recorder

	evaluations atomic.Int64
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithRecorder reports every generation to r.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Optimizer) { o.recorder = r }
}

// New creates an optimizer. An empty seed selects PlaceholderSeed.
func New(source, seed string, ev schemas.Evaluator, mut Mutator, rec Recombiner, cfg config.GeneticConfig, rng *rand.Rand, logger *zap.Logger, opts ...Option) (*Optimizer, error) {
	if ev == nil || mut == nil || rec == nil {
		return nil, errors.New("optimizer requires an evaluator, a mutator and a recombiner")
	}
	if rng == nil {
		return nil, errors.New("optimizer requires a random source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genetic configuration: %w", err)
	}
	if seed == "" {
		seed = PlaceholderSeed
	}
	o := &Optimizer{
		source:     source,
		seed:       seed,
		evaluator:  ev,
		mutator:    mut,
		recombiner: rec,
		cfg:        cfg,
		rng:        rng,
		logger:     logger.Named("genetic"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// TotalEvaluations is the number of individuals scored so far, including
// those whose operator failed.
func (o *Optimizer) TotalEvaluations() int {
	return int(o.evaluations.Load())
}

// offspring describes how one child is produced. All random draws happen
// when the plan is built, so a plan executes identically in any order.
type offspring struct {
	crossover bool
	kind      MutationKind
	parentA   string
	parentB   string
}

// Evolve initializes the population and runs up to Generations rounds,
// stopping early once an individual reaches 100. Cancellation is observed
// between generations and returns the best individual seen so far.
func (o *Optimizer) Evolve(ctx context.Context) (Individual, []GenerationRecord, error) {
	if err := ctx.Err(); err != nil {
		return Individual{}, nil, err
	}

	population := o.initialize(ctx)
	var history []GenerationRecord

	for gen := 1; gen <= o.cfg.Generations; gen++ {
		sortByFitness(population)
		if err := ctx.Err(); err != nil {
			return population[0], history, err
		}
		best := population[0]
		history = append(history, GenerationRecord{
			Generation:  gen,
			BestFitness: max(0, best.Fitness),
			BestCode:    best.Code,
		})
		o.recorder.ObserveGeneration(max(0, best.Fitness))
		o.logger.Info("Generation evaluated.",
			zap.Int("generation", gen),
			zap.Float64("best_fitness", best.Fitness),
			zap.Int("evaluations", o.TotalEvaluations()))

		if best.Fitness >= 100 {
			return best, history, nil
		}

		survivors := population[:min(o.cfg.Survivors, len(population))]
		plan := make([]offspring, o.cfg.PopulationSize-1)
		for i := range plan {
			partner := survivors[o.rng.Intn(len(survivors))]
			if o.rng.Float64() < o.cfg.CrossoverRate {
				plan[i] = offspring{crossover: true, parentA: best.Code, parentB: partner.Code}
			} else {
				plan[i] = offspring{kind: o.randomKind(), parentA: best.Code}
			}
		}
		population = append([]Individual{best}, o.breed(ctx, plan)...)
	}

	sortByFitness(population)
	return population[0], history, nil
}

// initialize scores the seed and PopulationSize-1 blind mutants of it.
func (o *Optimizer) initialize(ctx context.Context) []Individual {
	plan := make([]offspring, o.cfg.PopulationSize-1)
	for i := range plan {
		plan[i] = offspring{kind: o.randomKind(), parentA: o.seed}
	}
	population := []Individual{o.score(ctx, o.seed)}
	return append(population, o.breed(ctx, plan)...)
}

func (o *Optimizer) randomKind() MutationKind {
	return MutationKinds[o.rng.Intn(len(MutationKinds))]
}

// breed executes plan with at most Parallelism children in flight and
// returns the children in plan order.
func (o *Optimizer) breed(ctx context.Context, plan []offspring) []Individual {
	children := make([]Individual, len(plan))
	var g errgroup.Group
	g.SetLimit(o.cfg.Parallelism)
	for i, job := range plan {
		g.Go(func() error {
			children[i] = o.produce(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return children
}

func (o *Optimizer) produce(ctx context.Context, job offspring) Individual {
	var (
		code string
		err  error
	)
	if job.crossover {
		code, err = o.recombiner.Crossover(ctx, job.parentA, job.parentB)
	} else {
		code, err = o.mutator.Apply(ctx, job.kind, job.parentA)
	}
	if err != nil {
		o.evaluations.Add(1)
		o.logger.Warn("Operator failed; child gets the penalty.", zap.Bool("crossover", job.crossover), zap.Error(err))
		return Individual{Code: code, Fitness: o.cfg.Penalty}
	}
	return o.score(ctx, code)
}

// score runs the oracle. Anything short of a passing result earns the penalty.
func (o *Optimizer) score(ctx context.Context, code string) Individual {
	o.evaluations.Add(1)
	res, err := o.evaluator.Evaluate(ctx, o.source, code)
	if err != nil {
		o.logger.Debug("Evaluation failed.", zap.Error(err))
		return Individual{Code: code, Fitness: o.cfg.Penalty}
	}
	if !res.Success {
		return Individual{Code: code, Fitness: o.cfg.Penalty}
	}
	return Individual{Code: code, Fitness: res.CoveragePercent}
}

// sortByFitness orders descending, keeping insertion order among equals.
func sortByFitness(pop []Individual) {
	sort.SliceStable(pop, func(i, j int) bool { return pop[i].Fitness > pop[j].Fitness })
}
