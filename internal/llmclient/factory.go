package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
)

// NewClient builds the tier router from the model map, resolving the default
// fast and powerful model names.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (*LLMRouter, error) {
	fast, err := newTierClient(ctx, cfg, cfg.DefaultFastModel, "fast", logger)
	if err != nil {
		return nil, err
	}
	powerful, err := newTierClient(ctx, cfg, cfg.DefaultPowerfulModel, "powerful", logger)
	if err != nil {
		return nil, err
	}
	return NewLLMRouter(logger, fast, powerful)
}

func newTierClient(ctx context.Context, cfg config.LLMRouterConfig, name, tier string, logger *zap.Logger) (schemas.LLMClient, error) {
	if name == "" {
		return nil, fmt.Errorf("no default %s model configured", tier)
	}
	modelCfg, ok := cfg.Models[name]
	if !ok {
		return nil, fmt.Errorf("configuration for %s model '%s' not found in models map", tier, name)
	}
	client, err := NewModelClient(ctx, modelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s tier client (%s): %w", tier, name, err)
	}
	return client, nil
}

// NewModelClient creates a client for a single model based on its provider.
func NewModelClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI, config.ProviderOllama:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderOllama)
	}
}
