package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/internal/agent"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/observability"
	"github.com/xkilldash9x/covergen/internal/rl"
	"github.com/xkilldash9x/covergen/internal/service"
)

type agentOptions struct {
	SourcePath string
	Format     string
	MaxRetries int
}

type agentReport struct {
	RunID   string       `json:"run_id" yaml:"run_id"`
	Final   agent.Step   `json:"final" yaml:"final"`
	History []agent.Step `json:"history" yaml:"history"`
}

// newAgentCmd creates the 'agent' command. A nil factory selects the
// production one.
func newAgentCmd(factory service.ComponentFactory) *cobra.Command {
	if factory == nil {
		factory = service.NewComponentFactory()
	}
	var opts agentOptions

	cmd := &cobra.Command{
		Use:   "agent --source <file>",
		Short: "Generate a test with the reinforcement-learning agent",
		Long: `The agent command repeatedly asks the LLM for a test file, measures its
coverage in a sandbox and learns which prompting strategy works best for
each outcome. The Q-table is persisted between runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runAgent(ctx, cfg, observability.GetLogger(), opts, cmd.OutOrStdout(), factory)
		},
	}

	cmd.Flags().StringVarP(&opts.SourcePath, "source", "s", "", "Go source file to cover (required).")
	cmd.Flags().StringVarP(&opts.Format, "output", "o", formatText, "Output format: text, json or yaml.")
	cmd.Flags().IntVar(&opts.MaxRetries, "max-retries", 0, "Override agent.max_retries.")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// runAgent contains the agent command logic, decoupled from cobra.
func runAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts agentOptions, out io.Writer, factory service.ComponentFactory) error {
	if err := validateFormat(opts.Format); err != nil {
		return err
	}
	source, err := readRequiredFile("source", opts.SourcePath)
	if err != nil {
		return err
	}

	runCfg := *cfg
	if opts.MaxRetries > 0 {
		runCfg.Agent.MaxRetries = opts.MaxRetries
	}

	comps, err := factory.Create(ctx, &runCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer comps.Shutdown()

	brain, err := rl.NewBrain(ctx, agent.ActionNames(), comps.TableStore, runCfg.Brain, service.NewRand(runCfg.Brain.Seed), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Q-learning brain: %w", err)
	}
	a, err := agent.New(source, comps.Generator, comps.Evaluator, brain, runCfg.Agent, logger, agent.WithRecorder(comps.Recorder))
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	started := time.Now()
	logger.Info("Starting agent run.", zap.String("run_id", runID), zap.String("source", opts.SourcePath))
	final, history, runErr := a.Run(ctx)

	persistCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := brain.Flush(persistCtx); err != nil {
		logger.Warn("Failed to persist Q-table.", zap.Error(err))
	}
	saveHistory(persistCtx, comps.History, agentRunRecord(runID, started, final, history, runErr), logger)
	writeMetrics(comps.Recorder, runCfg.Metrics.Textfile, logger)

	report := agentReport{RunID: runID, Final: final, History: history}
	if err := render(out, opts.Format, report, func(w io.Writer) error { return printAgentText(w, report) }); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("agent run interrupted: %w", runErr)
	}
	logger.Info("Agent run finished.", zap.String("run_id", runID), zap.String("state", string(final.State)))
	return nil
}

func printAgentText(w io.Writer, r agentReport) error {
	fmt.Fprintf(w, "Run %s\n\n", r.RunID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ATTEMPT\tACTION\tSTATE\tREWARD\tDETAILS")
	for _, st := range r.History {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n", st.Attempt, st.Action, st.State, st.Reward, st.Details)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(r.History) == 0 {
		_, err := fmt.Fprintln(w, "\nNo attempts were made.")
		return err
	}
	fmt.Fprintf(w, "\nFinal state: %s (%s)\n", r.Final.State, r.Final.Details)
	if len(r.Final.MissedLines) > 0 {
		fmt.Fprintf(w, "Missed lines: %s\n", agent.FormatLines(r.Final.MissedLines))
	}
	_, err := fmt.Fprintf(w, "\n%s\n", r.Final.Code)
	return err
}
