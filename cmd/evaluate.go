package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/agent"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/metrics"
	"github.com/xkilldash9x/covergen/internal/observability"
	"github.com/xkilldash9x/covergen/internal/oracle"
)

// evaluatorInitializer builds the coverage oracle; tests inject a mock.
type evaluatorInitializer func(cfg config.OracleConfig, logger *zap.Logger) (schemas.Evaluator, error)

func initializeOracle(cfg config.OracleConfig, logger *zap.Logger) (schemas.Evaluator, error) {
	return oracle.New(cfg, logger)
}

type evaluateOptions struct {
	SourcePath string
	TestPath   string
	Format     string
}

func newEvaluateCmd(initFn evaluatorInitializer) *cobra.Command {
	if initFn == nil {
		initFn = initializeOracle
	}
	var opts evaluateOptions

	cmd := &cobra.Command{
		Use:   "evaluate --source <file> --test <file>",
		Short: "Measure the statement coverage a test file achieves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runEvaluate(ctx, cfg, observability.GetLogger(), opts, cmd.OutOrStdout(), initFn)
		},
	}

	cmd.Flags().StringVarP(&opts.SourcePath, "source", "s", "", "Go source file under test (required).")
	cmd.Flags().StringVarP(&opts.TestPath, "test", "t", "", "Go test file to run against the source (required).")
	cmd.Flags().StringVarP(&opts.Format, "output", "o", formatText, "Output format: text, json or yaml.")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("test")
	return cmd
}

// runEvaluate performs one oracle evaluation and prints the result.
func runEvaluate(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts evaluateOptions, out io.Writer, initFn evaluatorInitializer) error {
	if err := validateFormat(opts.Format); err != nil {
		return err
	}
	source, err := readRequiredFile("source", opts.SourcePath)
	if err != nil {
		return err
	}
	test, err := readRequiredFile("test", opts.TestPath)
	if err != nil {
		return err
	}

	ev, err := initFn(cfg.Oracle, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize coverage oracle: %w", err)
	}
	rec := metrics.NewRecorder()
	ev = metrics.InstrumentEvaluator(ev, rec)

	res, err := ev.Evaluate(ctx, source, test)
	writeMetrics(rec, cfg.Metrics.Textfile, logger)
	if err != nil {
		if kind := oracle.KindOf(err); kind != "" {
			return fmt.Errorf("evaluation failed (%s): %w", kind, err)
		}
		return fmt.Errorf("evaluation failed: %w", err)
	}

	return render(out, opts.Format, res, func(w io.Writer) error {
		fmt.Fprintf(w, "Tests passed: %t\n", res.Success)
		fmt.Fprintf(w, "Coverage: %.2f%%\n", res.CoveragePercent)
		_, err := fmt.Fprintf(w, "Missed lines: %s\n", agent.FormatLines(res.MissedLines))
		return err
	})
}
