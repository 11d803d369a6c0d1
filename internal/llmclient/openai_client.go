package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
)

const defaultOllamaEndpoint = "http://localhost:11434/v1"

// OpenAIClient implements schemas.LLMClient for any OpenAI-compatible chat
// completion API, including a local Ollama server.
type OpenAIClient struct {
	client *openai.Client
	logger *zap.Logger
	config config.LLMModelConfig
}

// NewOpenAIClient initializes the client. The API key is optional for Ollama.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	endpoint := cfg.Endpoint
	switch cfg.Provider {
	case config.ProviderOllama:
		if endpoint == "" {
			endpoint = defaultOllamaEndpoint
		}
	default:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API Key is required")
		}
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if endpoint != "" {
		oc.BaseURL = endpoint
	}
	if cfg.APITimeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		config: cfg,
		logger: logger.Named("llm_client." + string(cfg.Provider)),
	}, nil
}

// Generate runs one chat completion and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: temperature(req, c.config),
		TopP:        topP(req, c.config),
		MaxTokens:   c.config.MaxTokens,
	}
	if req.SystemPrompt != "" {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt,
		})
	}
	chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.UserPrompt,
	})
	if req.Options.ForceJSONFormat {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Error("Chat completion request failed", zap.Error(err), zap.Duration("duration", duration))
		return "", fmt.Errorf("%s API call failed: %w", c.config.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return "", fmt.Errorf("chat completion returned empty content (Reason: %s)", choice.FinishReason)
	}

	c.logger.Info("LLM generation complete",
		zap.String("provider", string(c.config.Provider)),
		zap.String("model", c.config.Model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return choice.Message.Content, nil
}
