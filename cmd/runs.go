package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/observability"
	"github.com/xkilldash9x/covergen/internal/service"
)

// historyInitializer opens the run history store and returns a cleanup
// that releases it.
type historyInitializer func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.HistoryStore, func(), error)

func initializeHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.HistoryStore, func(), error) {
	pool, err := service.InitializeDBPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	pg, err := service.InitializePostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, func() {
		pool.Close()
		logger.Debug("Database connection pool closed (via runs cleanup).")
	}, nil
}

type runsListOptions struct {
	Limit  int
	Format string
}

func newRunsCmd(initFn historyInitializer) *cobra.Command {
	if initFn == nil {
		initFn = initializeHistory
	}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted run history (requires PostgreSQL)",
	}

	var opts runsListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runRunsList(ctx, cfg, observability.GetLogger(), opts, cmd.OutOrStdout(), initFn)
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list.")
	list.Flags().StringVarP(&opts.Format, "output", "o", formatText, "Output format: text, json or yaml.")

	cmd.AddCommand(list)
	return cmd
}

func runRunsList(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts runsListOptions, out io.Writer, initFn historyInitializer) error {
	if err := validateFormat(opts.Format); err != nil {
		return err
	}
	hs, cleanup, err := initFn(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer cleanup()

	runs, err := hs.ListRuns(ctx, opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []schemas.RunRecord{}
	}
	return render(out, opts.Format, runs, func(w io.Writer) error { return printRuns(w, runs) })
}

func printRuns(w io.Writer, runs []schemas.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTATUS\tBEST\tEVALUATIONS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\t%s\n",
			r.ID, r.Mode, r.Status, r.BestScore, r.Evaluations,
			r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
	return tw.Flush()
}
