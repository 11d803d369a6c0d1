// Package llmclient provides language model clients and a tier router over
// them.
package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
)

// LLMRouter implements schemas.LLMClient by dispatching each request to the
// client registered for its tier.
type LLMRouter struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
}

// NewLLMRouter creates a router over one client per tier.
func NewLLMRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient) (*LLMRouter, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}
	return &LLMRouter{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

// Generate forwards req unchanged to the client for req.Tier. An empty tier
// means powerful. Client errors are wrapped with the tier that served them.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}
	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	start := time.Now()
	out, err := client.Generate(ctx, req)
	fields := []zap.Field{
		zap.String("tier", string(tier)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_chars", len(req.SystemPrompt)+len(req.UserPrompt)),
	}
	if err != nil {
		r.logger.Debug("LLM request failed", append(fields, zap.Error(err))...)
		return "", fmt.Errorf("%s tier: %w", tier, err)
	}
	r.logger.Debug("LLM request completed", append(fields, zap.Int("response_chars", len(out)))...)
	return out, nil
}
