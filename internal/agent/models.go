package agent

// State is the agent's observation of the latest attempt. It is derived only
// from the evaluation outcome and the coverage reached so far.
type State string

const (
	StateInitial         State = "STATE_INITIAL"     // No attempt has been made yet.
	StateSyntaxError     State = "SYNTAX_ERROR"      // Generation or evaluation produced no result.
	StateTestFailure     State = "TEST_FAILURE"      // Tests ran but did not pass.
	StateCoverageVeryLow State = "COVERAGE_VERY_LOW" // Passing, below the very-low threshold.
	StateCoverageLow     State = "COVERAGE_LOW"
	StateCoverageMedium  State = "COVERAGE_MEDIUM"
	StateCoverageHigh    State = "COVERAGE_HIGH"
	StatePerfect         State = "PERFECT" // Passing with 100% statement coverage.
)

// IsCoverageBand reports whether s is one of the four coverage bands.
func (s State) IsCoverageBand() bool {
	switch s {
	case StateCoverageVeryLow, StateCoverageLow, StateCoverageMedium, StateCoverageHigh:
		return true
	}
	return false
}

// Action is a prompting strategy the brain can pick.
type Action string

const (
	ActionStandard Action = "STANDARD"  // Write a complete table-driven test file.
	ActionSimplify Action = "SIMPLIFY"  // Fall back to a simpler test after an error.
	ActionExpand   Action = "EXPAND"    // Target the lines the last attempt missed.
	ActionEdgeCase Action = "EDGE_CASE" // Probe zero values, nil, negatives and boundaries.
)

// Actions is the closed action set, in a stable order.
var Actions = []Action{ActionStandard, ActionSimplify, ActionExpand, ActionEdgeCase}

// ActionNames returns Actions as plain strings for the brain.
func ActionNames() []string {
	names := make([]string, len(Actions))
	for i, a := range Actions {
		names[i] = string(a)
	}
	return names
}

// Step status labels.
const (
	StatusError       = "Error"
	StatusTestFailure = "Test Failure"
	StatusPerfect     = "Perfect"
	StatusCoverage    = "Coverage"
)

// Step records one attempt of a run.
type Step struct {
	Attempt     int     `json:"attempt" yaml:"attempt"`
	Action      Action  `json:"action" yaml:"action"`
	State       State   `json:"state" yaml:"state"`
	Status      string  `json:"status" yaml:"status"`
	Details     string  `json:"details" yaml:"details"`
	Reward      float64 `json:"reward" yaml:"reward"`
	Coverage    float64 `json:"coverage" yaml:"coverage"`
	Code        string  `json:"code" yaml:"code"`
	MissedLines []int   `json:"missed_lines,omitempty" yaml:"missed_lines,omitempty"`
}
