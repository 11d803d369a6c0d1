package mocks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/mocks"
)

var (
	_ schemas.LLMClient    = (*mocks.MockLLMClient)(nil)
	_ schemas.Generator    = (*mocks.MockGenerator)(nil)
	_ schemas.Evaluator    = (*mocks.MockEvaluator)(nil)
	_ schemas.HistoryStore = (*mocks.MockHistoryStore)(nil)
)

func TestMockLLMClient_HonorsCancellation(t *testing.T) {
	m := new(mocks.MockLLMClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, schemas.GenerationRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	m.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestMockEvaluator_NilResult(t *testing.T) {
	m := new(mocks.MockEvaluator)
	m.On("Evaluate", mock.Anything, "src", "bad").Return(nil, errors.New("no report"))
	m.On("Evaluate", mock.Anything, "src", "good").Return(&schemas.CoverageResult{Success: true, CoveragePercent: 50}, nil)

	res, err := m.Evaluate(context.Background(), "src", "bad")
	assert.Nil(t, res)
	assert.Error(t, err)

	res, err = m.Evaluate(context.Background(), "src", "good")
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.CoveragePercent)
}
