// Package mocks holds testify mocks for the shared contracts in api/schemas.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/covergen/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// -- Generator Mock --

// MockGenerator mocks the schemas.Generator interface.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// -- Evaluator Mock --

// MockEvaluator mocks the schemas.Evaluator interface.
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, source, test string) (*schemas.CoverageResult, error) {
	args := m.Called(ctx, source, test)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.CoverageResult), args.Error(1)
}

// -- History Store Mock --

// MockHistoryStore mocks the schemas.HistoryStore interface.
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) SaveRun(ctx context.Context, run *schemas.RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockHistoryStore) ListRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.RunRecord), args.Error(1)
}

// -- Table Store Mock --

// MockTableStore mocks the Q-table persistence contract.
type MockTableStore struct {
	mock.Mock
}

func (m *MockTableStore) Load(ctx context.Context) (schemas.QTable, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.QTable), args.Error(1)
}

func (m *MockTableStore) Save(ctx context.Context, t schemas.QTable) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTableStore) Close() error {
	return m.Called().Error(0)
}
