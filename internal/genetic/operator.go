package genetic

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/covergen/api/schemas"
)

// PromptOperator implements Mutator and Recombiner by asking a language model
// to perform the change.
type PromptOperator struct {
	source    string
	generator schemas.Generator
}

// NewPromptOperator returns an operator over gen. source is shown to the
// model for reference only.
func NewPromptOperator(source string, gen schemas.Generator) *PromptOperator {
	return &PromptOperator{source: source, generator: gen}
}

func (p *PromptOperator) Apply(ctx context.Context, kind MutationKind, candidate string) (string, error) {
	code, err := p.generator.Generate(ctx, mutationPrompt(p.source, candidate, kind))
	if err != nil {
		return "", fmt.Errorf("mutation %s failed: %w", kind, err)
	}
	return code, nil
}

func (p *PromptOperator) Crossover(ctx context.Context, a, b string) (string, error) {
	code, err := p.generator.Generate(ctx, crossoverPrompt(a, b))
	if err != nil {
		return "", fmt.Errorf("crossover failed: %w", err)
	}
	return code, nil
}

func mutationPrompt(source, candidate string, kind MutationKind) string {
	return fmt.Sprintf(`You are a BLIND genetic mutation operator.
Your job is NOT to improve the code. Apply exactly the requested random change and nothing else.
Do not care whether the result compiles or whether coverage goes up.

Source code (reference only):
%s

Current test file:
%s

MUTATION TO APPLY: %s

Instructions:
1. VALUE_MODIFICATION: change some literal arguments (numbers, strings) in the tests at random.
2. ADD_NEW_ASSERT: add a call to one of the source functions. It does not have to make sense.
3. REMOVE_LINE: delete one random line from one of the test functions.
4. LOGIC_FLIP: invert one logical or comparison operator in the tests.

Return only the complete Go test file. Do not add comments.`, source, candidate, kind)
}

func crossoverPrompt(a, b string) string {
	return fmt.Sprintf(`Perform genetic crossover.
Take the two Go test files below and blend their test cases at random into one new, complete Go test file in package app.

Parent A:
%s

Parent B:
%s

Return only the Go test file.`, a, b)
}
