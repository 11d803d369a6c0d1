package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/generator"
	"github.com/xkilldash9x/covergen/internal/metrics"
	"github.com/xkilldash9x/covergen/internal/oracle"
	"github.com/xkilldash9x/covergen/internal/store"
)

// ComponentFactory builds the components for a run. Commands depend on the
// interface so tests can substitute mocks.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory creates the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create validates cfg and builds the LLM client, generator, oracle, metrics
// recorder, Q-table store and, if enabled, the history store. On failure
// everything already built is shut down.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (c *Components, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c = &Components{logger: logger.Named("components")}
	defer func() {
		if err != nil {
			c.Shutdown()
			c = nil
		}
	}()

	c.Recorder = metrics.NewRecorder()

	if c.LLM, err = InitializeLLMClient(ctx, cfg.LLM, logger); err != nil {
		return c, err
	}
	gen, err := generator.New(c.LLM, cfg.Generator, logger)
	if err != nil {
		return c, fmt.Errorf("failed to initialize generator: %w", err)
	}
	c.Generator = gen

	orc, err := oracle.New(cfg.Oracle, logger)
	if err != nil {
		return c, fmt.Errorf("failed to initialize coverage oracle: %w", err)
	}
	c.Evaluator = metrics.InstrumentEvaluator(orc, c.Recorder)

	var pg *store.Store
	if cfg.Brain.Store == "postgres" || cfg.History.Enabled {
		if c.DBPool, err = InitializeDBPool(ctx, cfg.Database, logger); err != nil {
			return c, err
		}
		if pg, err = InitializePostgresStore(ctx, c.DBPool, logger); err != nil {
			return c, err
		}
	}
	if cfg.History.Enabled {
		c.History = pg
	}

	if c.TableStore, err = InitializeTableStore(ctx, cfg.Brain, pg, logger); err != nil {
		return c, fmt.Errorf("failed to initialize Q-table store: %w", err)
	}
	return c, nil
}
