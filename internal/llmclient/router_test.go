package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/mocks"
)

// setupRouter creates a router over two mocks along with a log observer.
func setupRouter(t *testing.T) (*LLMRouter, *mocks.MockLLMClient, *mocks.MockLLMClient, *observer.ObservedLogs) {
	t.Helper()
	loggerCore, observedLogs := observer.New(zap.DebugLevel)
	logger := zap.New(loggerCore)

	fastClient := new(mocks.MockLLMClient)
	powerfulClient := new(mocks.MockLLMClient)

	router, err := NewLLMRouter(logger, fastClient, powerfulClient)
	require.NoError(t, err, "NewLLMRouter should initialize successfully")

	return router, fastClient, powerfulClient, observedLogs
}

func TestNewLLMRouter_Success(t *testing.T) {
	router, fastClient, powerfulClient, _ := setupRouter(t)

	require.NotNil(t, router)
	assert.Same(t, fastClient, router.clients[schemas.TierFast])
	assert.Same(t, powerfulClient, router.clients[schemas.TierPowerful])
}

func TestNewLLMRouter_Failure_MissingClients(t *testing.T) {
	logger := setupTestLogger(t)
	validClient := new(mocks.MockLLMClient)

	tests := []struct {
		name     string
		fast     schemas.LLMClient
		powerful schemas.LLMClient
	}{
		{"Missing Fast Client", nil, validClient},
		{"Missing Powerful Client", validClient, nil},
		{"Missing Both Clients", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, err := NewLLMRouter(logger, tt.fast, tt.powerful)
			require.Error(t, err)
			assert.Nil(t, router)
			assert.Contains(t, err.Error(), "both fast and powerful tier clients must be provided")
		})
	}
}

func TestGenerate_Routing(t *testing.T) {
	tests := []struct {
		name         string
		tier         schemas.ModelTier
		wantFast     bool
		expectedTier string
	}{
		{"fast tier", schemas.TierFast, true, "fast"},
		{"powerful tier", schemas.TierPowerful, false, "powerful"},
		{"empty tier defaults to powerful", "", false, "powerful"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, fastClient, powerfulClient, observedLogs := setupRouter(t)
			ctx := context.Background()
			req := schemas.GenerationRequest{Tier: tt.tier, UserPrompt: "write a test"}

			target, other := powerfulClient, fastClient
			if tt.wantFast {
				target, other = fastClient, powerfulClient
			}
			// The request reaches the client unchanged, tier included.
			target.On("Generate", ctx, req).Return("package app", nil).Once()

			response, err := router.Generate(ctx, req)

			require.NoError(t, err)
			assert.Equal(t, "package app", response)
			target.AssertExpectations(t)
			other.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)

			require.Equal(t, 1, observedLogs.Len())
			entry := observedLogs.All()[0]
			assert.Equal(t, "LLM request completed", entry.Message)
			fields := entry.ContextMap()
			assert.Equal(t, tt.expectedTier, fields["tier"])
			assert.EqualValues(t, len("write a test"), fields["prompt_chars"])
			assert.EqualValues(t, len("package app"), fields["response_chars"])
		})
	}
}

func TestGenerate_ErrorPropagation(t *testing.T) {
	router, fastClient, _, observedLogs := setupRouter(t)
	ctx := context.Background()
	req := schemas.GenerationRequest{Tier: schemas.TierFast}
	expectedError := errors.New("underlying client API failure")

	fastClient.On("Generate", ctx, req).Return("", expectedError).Once()

	response, err := router.Generate(ctx, req)

	assert.Empty(t, response)
	assert.ErrorIs(t, err, expectedError)
	assert.EqualError(t, err, "fast tier: underlying client API failure")
	assert.Equal(t, 1, observedLogs.FilterMessage("LLM request failed").Len())
}

func TestGenerate_InvalidTier(t *testing.T) {
	router, fastClient, powerfulClient, _ := setupRouter(t)
	req := schemas.GenerationRequest{Tier: schemas.ModelTier("invalid-tier-xyz")}

	response, err := router.Generate(context.Background(), req)

	require.Error(t, err)
	assert.Empty(t, response)
	assert.Contains(t, err.Error(), "no LLM client configured for tier: invalid-tier-xyz")
	fastClient.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	powerfulClient.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}
