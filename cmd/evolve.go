package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/genetic"
	"github.com/xkilldash9x/covergen/internal/observability"
	"github.com/xkilldash9x/covergen/internal/service"
)

type evolveOptions struct {
	SourcePath  string
	SeedPath    string
	Format      string
	Generations int
	Population  int
}

type evolveReport struct {
	RunID            string                     `json:"run_id" yaml:"run_id"`
	Best             genetic.Individual         `json:"best" yaml:"best"`
	Generations      []genetic.GenerationRecord `json:"generations" yaml:"generations"`
	TotalEvaluations int                        `json:"total_evaluations" yaml:"total_evaluations"`
}

// newEvolveCmd creates the 'evolve' command. A nil factory selects the
// production one.
func newEvolveCmd(factory service.ComponentFactory) *cobra.Command {
	if factory == nil {
		factory = service.NewComponentFactory()
	}
	var opts evolveOptions

	cmd := &cobra.Command{
		Use:   "evolve --source <file> [--seed-test <file>]",
		Short: "Evolve a test file with the genetic optimizer",
		Long: `The evolve command keeps a small population of test files, scores each one
by coverage, and breeds the best through LLM-driven mutation and crossover.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runEvolve(ctx, cfg, observability.GetLogger(), opts, cmd.OutOrStdout(), factory)
		},
	}

	cmd.Flags().StringVarP(&opts.SourcePath, "source", "s", "", "Go source file to cover (required).")
	cmd.Flags().StringVar(&opts.SeedPath, "seed-test", "", "Initial test file; a placeholder is used when omitted.")
	cmd.Flags().StringVarP(&opts.Format, "output", "o", formatText, "Output format: text, json or yaml.")
	cmd.Flags().IntVar(&opts.Generations, "generations", 0, "Override genetic.generations.")
	cmd.Flags().IntVar(&opts.Population, "population", 0, "Override genetic.population_size.")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// runEvolve contains the evolve command logic, decoupled from cobra.
func runEvolve(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts evolveOptions, out io.Writer, factory service.ComponentFactory) error {
	if err := validateFormat(opts.Format); err != nil {
		return err
	}
	source, err := readRequiredFile("source", opts.SourcePath)
	if err != nil {
		return err
	}
	var seed string
	if opts.SeedPath != "" {
		data, err := os.ReadFile(opts.SeedPath)
		if err != nil {
			return fmt.Errorf("failed to read seed-test file: %w", err)
		}
		seed = string(data)
	}

	runCfg := *cfg
	if opts.Generations > 0 {
		runCfg.Genetic.Generations = opts.Generations
	}
	if opts.Population > 0 {
		runCfg.Genetic.PopulationSize = opts.Population
	}

	comps, err := factory.Create(ctx, &runCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer comps.Shutdown()

	op := genetic.NewPromptOperator(source, comps.Generator)
	opt, err := genetic.New(source, seed, comps.Evaluator, op, op, runCfg.Genetic,
		service.NewRand(runCfg.Genetic.Seed), logger, genetic.WithRecorder(comps.Recorder))
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	started := time.Now()
	logger.Info("Starting genetic run.",
		zap.String("run_id", runID),
		zap.String("source", opts.SourcePath),
		zap.Int("population", runCfg.Genetic.PopulationSize),
		zap.Int("generations", runCfg.Genetic.Generations))
	best, gens, runErr := opt.Evolve(ctx)

	persistCtx, cancel := persistContext(ctx)
	defer cancel()
	saveHistory(persistCtx, comps.History, geneticRunRecord(runID, started, best, gens, opt.TotalEvaluations(), runErr), logger)
	writeMetrics(comps.Recorder, runCfg.Metrics.Textfile, logger)

	report := evolveReport{RunID: runID, Best: best, Generations: gens, TotalEvaluations: opt.TotalEvaluations()}
	if err := render(out, opts.Format, report, func(w io.Writer) error { return printEvolveText(w, report) }); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("genetic run interrupted: %w", runErr)
	}
	logger.Info("Genetic run finished.", zap.String("run_id", runID), zap.Float64("best_fitness", best.Fitness))
	return nil
}

func printEvolveText(w io.Writer, r evolveReport) error {
	fmt.Fprintf(w, "Run %s\n\n", r.RunID)
	for _, g := range r.Generations {
		fmt.Fprintf(w, "Generation %d: best fitness %.2f\n", g.Generation, g.BestFitness)
	}
	fmt.Fprintf(w, "\nBest fitness: %.2f after %d evaluations\n", r.Best.Fitness, r.TotalEvaluations)
	_, err := fmt.Fprintf(w, "\n%s\n", r.Best.Code)
	return err
}
