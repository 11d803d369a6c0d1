package llmclient

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/covergen/internal/config"
)

func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))
}

// getValidLLMConfig returns a Gemini model entry that passes validation.
// The key is fake, so only construction can be exercised with it.
func getValidLLMConfig() config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:    config.ProviderGemini,
		APIKey:      "test-api-key",
		Model:       "gemini-2.5-flash",
		APITimeout:  5 * time.Second,
		Temperature: 0.2,
		TopP:        0.95,
		TopK:        40,
	}
}
