package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/agent"
	"github.com/xkilldash9x/covergen/internal/genetic"
	"github.com/xkilldash9x/covergen/internal/metrics"
)

const (
	runStatusCompleted = "Completed"
	runStatusCancelled = "Cancelled"
	persistTimeout     = 30 * time.Second
)

// persistContext outlives a cancelled run so results are still saved.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func agentRunRecord(id string, started time.Time, final agent.Step, history []agent.Step, runErr error) *schemas.RunRecord {
	rec := &schemas.RunRecord{
		ID:          id,
		Mode:        schemas.RunModeAgent,
		Status:      final.Status,
		Evaluations: len(history),
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Steps:       make([]schemas.RunStep, len(history)),
	}
	for i, st := range history {
		rec.BestScore = max(rec.BestScore, st.Coverage)
		rec.Steps[i] = schemas.RunStep{
			Index:  st.Attempt,
			Label:  string(st.Action),
			Status: st.Status,
			Score:  st.Coverage,
			Code:   st.Code,
		}
	}
	if runErr != nil {
		rec.Status = runStatusCancelled
	}
	return rec
}

func geneticRunRecord(id string, started time.Time, best genetic.Individual, gens []genetic.GenerationRecord, evaluations int, runErr error) *schemas.RunRecord {
	rec := &schemas.RunRecord{
		ID:          id,
		Mode:        schemas.RunModeGenetic,
		Status:      runStatusCompleted,
		BestScore:   max(0, best.Fitness),
		Evaluations: evaluations,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Steps:       make([]schemas.RunStep, len(gens)),
	}
	for i, g := range gens {
		rec.Steps[i] = schemas.RunStep{
			Index: g.Generation,
			Label: "generation",
			Score: g.BestFitness,
			Code:  g.BestCode,
		}
	}
	switch {
	case runErr != nil:
		rec.Status = runStatusCancelled
	case best.Fitness >= 100:
		rec.Status = agent.StatusPerfect
	}
	return rec
}

// saveHistory persists rec when history is enabled. Failures are logged.
func saveHistory(ctx context.Context, hs schemas.HistoryStore, rec *schemas.RunRecord, logger *zap.Logger) {
	if hs == nil {
		return
	}
	if err := hs.SaveRun(ctx, rec); err != nil {
		logger.Warn("Failed to persist run history.", zap.String("run_id", rec.ID), zap.Error(err))
		return
	}
	logger.Info("Run history saved.", zap.String("run_id", rec.ID))
}

func writeMetrics(r *metrics.Recorder, path string, logger *zap.Logger) {
	if path == "" {
		return
	}
	if err := r.WriteTextfile(path); err != nil {
		logger.Warn("Failed to export metrics.", zap.Error(err))
	}
}
