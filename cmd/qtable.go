package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/agent"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/observability"
	"github.com/xkilldash9x/covergen/internal/rl"
	"github.com/xkilldash9x/covergen/internal/service"
	"github.com/xkilldash9x/covergen/internal/store"
)

// tableStoreInitializer opens the configured Q-table store and returns a
// cleanup that releases it.
type tableStoreInitializer func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (rl.TableStore, func(), error)

func initializeTableStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (rl.TableStore, func(), error) {
	var pg *store.Store
	release := func() {}
	if cfg.Brain.Store == "postgres" {
		pool, err := service.InitializeDBPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		if pg, err = service.InitializePostgresStore(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		release = pool.Close
	}

	ts, err := service.InitializeTableStore(ctx, cfg.Brain, pg, logger)
	if err != nil {
		release()
		return nil, nil, err
	}
	return ts, func() {
		if err := ts.Close(); err != nil {
			logger.Warn("Error closing Q-table store.", zap.Error(err))
		}
		release()
	}, nil
}

func newQTableCmd(initFn tableStoreInitializer) *cobra.Command {
	if initFn == nil {
		initFn = initializeTableStore
	}

	cmd := &cobra.Command{
		Use:   "qtable",
		Short: "Inspect or reset the learned Q-table",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted Q-table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runQTableShow(ctx, cfg, observability.GetLogger(), format, cmd.OutOrStdout(), initFn)
		},
	}
	show.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml.")

	var confirmed bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear the persisted Q-table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runQTableReset(ctx, cfg, observability.GetLogger(), confirmed, cmd.OutOrStdout(), initFn)
		},
	}
	reset.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm that all learned values should be discarded.")

	cmd.AddCommand(show, reset)
	return cmd
}

func runQTableShow(ctx context.Context, cfg *config.Config, logger *zap.Logger, format string, out io.Writer, initFn tableStoreInitializer) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	ts, cleanup, err := initFn(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open Q-table store: %w", err)
	}
	defer cleanup()

	table, err := ts.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load Q-table: %w", err)
	}
	if table == nil {
		table = schemas.QTable{}
	}
	return render(out, format, table, func(w io.Writer) error { return printQTable(w, table) })
}

func runQTableReset(ctx context.Context, cfg *config.Config, logger *zap.Logger, confirmed bool, out io.Writer, initFn tableStoreInitializer) error {
	if !confirmed {
		return fmt.Errorf("refusing to reset the Q-table without --yes")
	}
	ts, cleanup, err := initFn(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open Q-table store: %w", err)
	}
	defer cleanup()

	if err := ts.Save(ctx, schemas.QTable{}); err != nil {
		return fmt.Errorf("failed to reset Q-table: %w", err)
	}
	logger.Info("Q-table reset.", zap.String("store", cfg.Brain.Store))
	_, err = fmt.Fprintln(out, "Q-table reset.")
	return err
}

// printQTable lists states alphabetically with the agent's actions first as
// columns, followed by any other actions found in the table.
func printQTable(w io.Writer, table schemas.QTable) error {
	if len(table) == 0 {
		_, err := fmt.Fprintln(w, "Q-table is empty.")
		return err
	}

	columns := agent.ActionNames()
	var extra []string
	states := make([]string, 0, len(table))
	for state, row := range table {
		states = append(states, state)
		for action := range row {
			if !slices.Contains(columns, action) && !slices.Contains(extra, action) {
				extra = append(extra, action)
			}
		}
	}
	sort.Strings(states)
	sort.Strings(extra)
	columns = append(columns, extra...)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "STATE\t")
	for _, c := range columns {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprintln(tw)
	for _, state := range states {
		fmt.Fprintf(tw, "%s\t", state)
		for _, c := range columns {
			fmt.Fprintf(tw, "%.3f\t", table[state][c])
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
