// Package agent runs the reinforcement-learning test generation loop.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/metrics"
)

// Policy chooses actions and learns from their outcomes. *rl.Brain
// implements it.
type Policy interface {
	ChooseAction(state string) string
	Learn(ctx context.Context, state, action string, reward float64, next string) error
}

// Agent improves a test file for one source over a bounded number of
// attempts.
type Agent struct {
	source    string
	generator schemas.Generator
	evaluator schemas.Evaluator
	policy    Policy
	cfg       config.AgentConfig
	logger    *zap.Logger
	recorder  *metrics.Recorder
}

// Option customizes an Agent.
type Option func(*Agent)

// WithRecorder reports every attempt to r.
func WithRecorder(r *metrics.Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// New creates an agent for source.
func New(source string, gen schemas.Generator, ev schemas.Evaluator, policy Policy, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) (*Agent, error) {
	if gen == nil || ev == nil || policy == nil {
		return nil, errors.New("agent requires a generator, an evaluator and a policy")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent configuration: %w", err)
	}
	a := &Agent{
		source:    source,
		generator: gen,
		evaluator: ev,
		policy:    policy,
		cfg:       cfg,
		logger:    logger.Named("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run executes up to MaxRetries attempts and stops early on perfect coverage.
// It returns the last step and the full history. Attempt failures are folded
// into the history; the only error is a cancelled ctx, returned together with
// the steps completed so far.
func (a *Agent) Run(ctx context.Context) (Step, []Step, error) {
	state := StateInitial
	prevCoverage := 0.0
	history := make([]Step, 0, a.cfg.MaxRetries)

	a.logger.Info("Agent run starting.", zap.Int("max_retries", a.cfg.MaxRetries))
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return lastStep(history), history, err
		}

		action := Action(a.policy.ChooseAction(string(state)))
		prompt := BuildPrompt(action, a.source, contextFrom(history))

		code, err := a.generator.Generate(ctx, prompt)
		if err != nil && ctx.Err() != nil {
			// Cancelled mid-attempt; nothing was observed so nothing is learned.
			return lastStep(history), history, ctx.Err()
		}
		var res *schemas.CoverageResult
		if err == nil {
			res, err = a.evaluator.Evaluate(ctx, a.source, code)
		}

		next := Classify(res, err, a.cfg.Thresholds)
		step := Step{Attempt: attempt, Action: action, State: next, Code: code}

		var delta float64
		switch {
		case next == StateSyntaxError:
			step.Status = StatusError
			step.Details = "no coverage result"
			if err != nil {
				step.Details = err.Error()
			}
		case next == StateTestFailure:
			step.Status = StatusTestFailure
			step.Details = "Tests failed"
			step.Coverage = res.CoveragePercent
		case next == StatePerfect:
			step.Status = StatusPerfect
			step.Details = "Coverage: 100%"
			step.Coverage = 100
			prevCoverage = 100
		default:
			delta = res.CoveragePercent - prevCoverage
			step.Status = StatusCoverage
			step.Details = fmt.Sprintf("Coverage: %.2f%% (change: %+.2f)", res.CoveragePercent, delta)
			step.Coverage = res.CoveragePercent
			step.MissedLines = res.MissedLines
			prevCoverage = res.CoveragePercent
		}

		step.Reward = Reward(next, attempt, delta, a.cfg.Rewards)
		if lerr := a.policy.Learn(ctx, string(state), string(action), step.Reward, string(next)); lerr != nil {
			a.logger.Warn("Failed to persist learning update.", zap.Error(lerr))
		}
		a.recorder.ObserveStep(string(action), string(next), step.Reward)

		a.logger.Info("Attempt finished.",
			zap.Int("attempt", attempt),
			zap.String("action", string(action)),
			zap.String("state", string(next)),
			zap.Float64("reward", step.Reward),
			zap.Float64("coverage", step.Coverage))

		history = append(history, step)
		state = next
		if next == StatePerfect {
			return step, history, nil
		}
	}
	return lastStep(history), history, nil
}

func lastStep(history []Step) Step {
	if len(history) == 0 {
		return Step{}
	}
	return history[len(history)-1]
}
