package schemas

import (
	"context"
)

// -- LLM Interfaces --

// ModelTier selects which class of model serves a request.
type ModelTier string

const (
	// TierFast favors latency and cost.
	TierFast ModelTier = "fast"
	// TierPowerful favors quality.
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions holds sampling parameters for a single request.
type GenerationOptions struct {
	Temperature     float32
	ForceJSONFormat bool
	TopP            float32
	TopK            int
}

// GenerationRequest is the provider-neutral request passed to an LLMClient.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Tier         ModelTier
	Options      GenerationOptions
}

// LLMClient defines the contract for every language model backend.
//
//go:generate mockery --name LLMClient --output ../../internal/mocks --outpkg mocks
type LLMClient interface {
	// Generate returns the raw completion text for the request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// -- Search Interfaces --

// Generator turns a prompt into candidate test source. A failed generation is
// reported through the error, never through the returned text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Evaluator runs a candidate test against a target source and measures
// statement coverage. A nil result with a non-nil error is a hard failure,
// distinct from a result whose Success field is false.
type Evaluator interface {
	Evaluate(ctx context.Context, source, test string) (*CoverageResult, error)
}

// -- Store Interfaces --

// HistoryStore persists finished run records. Implementations must be safe
// for use by a single run at a time.
type HistoryStore interface {
	// SaveRun stores the record together with its steps.
	SaveRun(ctx context.Context, run *RunRecord) error
	// ListRuns returns the most recent runs, newest first, without steps.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
