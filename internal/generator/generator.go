// Package generator turns prompts into candidate test files using a language
// model.
package generator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
	"github.com/xkilldash9x/covergen/internal/llmutil"
)

// ErrEmptyOutput is returned when the model produced no usable code.
var ErrEmptyOutput = errors.New("model returned no code")

// SystemPrompt frames every request as Go test authoring.
const SystemPrompt = `You are an expert Go engineer who writes unit tests.
Reply with a single complete Go test file and nothing else: no prose, no explanations.
The code under test lives in package app. Use only the standard library "testing" package.
Prefer table-driven tests with t.Run subtests.`

// LLMGenerator implements schemas.Generator. Requests are paced by a token
// bucket so consecutive attempts never hammer the provider.
type LLMGenerator struct {
	client  schemas.LLMClient
	limiter *rate.Limiter
	tier    schemas.ModelTier
	temp    float32
	logger  *zap.Logger
}

// New creates a generator over client.
func New(client schemas.LLMClient, cfg config.GeneratorConfig, logger *zap.Logger) (*LLMGenerator, error) {
	if client == nil {
		return nil, errors.New("generator requires an LLM client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LLMGenerator{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		tier:    schemas.ModelTier(cfg.Tier),
		temp:    cfg.Temperature,
		logger:  logger.Named("generator"),
	}, nil
}

// Generate waits for a rate-limit token, queries the model and strips
// markdown fences from the answer.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	raw, err := g.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: SystemPrompt,
		UserPrompt:   prompt,
		Tier:         g.tier,
		Options:      schemas.GenerationOptions{Temperature: g.temp},
	})
	if err != nil {
		g.logger.Warn("Generation failed.", zap.Error(err))
		return "", fmt.Errorf("generation failed: %w", err)
	}

	code := llmutil.CleanCodeOutput(raw)
	if code == "" {
		return "", ErrEmptyOutput
	}
	g.logger.Debug("Generated candidate.", zap.Int("bytes", len(code)))
	return code, nil
}
