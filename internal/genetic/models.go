package genetic

import "context"

// MutationKind names a blind perturbation applied to a test file.
type MutationKind string

const (
	MutationValueModification MutationKind = "VALUE_MODIFICATION" // Change literal arguments.
	MutationAddNewAssert      MutationKind = "ADD_NEW_ASSERT"     // Add a call to some function of the source.
	MutationRemoveLine        MutationKind = "REMOVE_LINE"        // Delete a line from a test function.
	MutationLogicFlip         MutationKind = "LOGIC_FLIP"         // Invert a logical or comparison operator.
)

// MutationKinds lists every kind; mutation draws uniformly from it.
var MutationKinds = []MutationKind{
	MutationValueModification,
	MutationAddNewAssert,
	MutationRemoveLine,
	MutationLogicFlip,
}

// Individual is one candidate test file and its fitness.
type Individual struct {
	Code    string  `json:"code" yaml:"code"`
	Fitness float64 `json:"fitness" yaml:"fitness"`
}

// GenerationRecord summarizes a generation after selection. BestFitness is
// clamped at zero.
type GenerationRecord struct {
	Generation  int     `json:"generation" yaml:"generation"`
	BestFitness float64 `json:"best_fitness" yaml:"best_fitness"`
	BestCode    string  `json:"best_code" yaml:"best_code"`
}

// Mutator applies a mutation of the given kind to a candidate.
type Mutator interface {
	Apply(ctx context.Context, kind MutationKind, candidate string) (string, error)
}

// Recombiner blends two parents into a child.
type Recombiner interface {
	Crossover(ctx context.Context, a, b string) (string, error)
}

// PlaceholderSeed starts the population when no seed test is supplied.
const PlaceholderSeed = `package app

import "testing"

func TestPlaceholder(t *testing.T) {}
`
