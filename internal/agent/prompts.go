package agent

import (
	"fmt"
	"strconv"
	"strings"
)

const baseInstruction = `Write a Go test file for the source code below using the standard "testing" package.
RULES:
1. Never redeclare the functions or types under test. They already exist in package app.
2. Reply with Go code only.`

// PromptContext carries what the previous attempt learned.
type PromptContext struct {
	// LastError is set only when the previous attempt ended in an error.
	LastError string
	// MissedLines is the rendered missed-line list of the previous coverage outcome.
	MissedLines string
}

// BuildPrompt renders the template for action around the immutable source.
func BuildPrompt(action Action, source string, pc PromptContext) string {
	var guidance string
	switch action {
	case ActionStandard:
		guidance = "Write thorough, table-driven tests that exercise every exported and unexported function."
	case ActionSimplify:
		guidance = fmt.Sprintf("The previous test file FAILED with this error:\n%s\nSIMPLIFY it: avoid elaborate helpers and extra imports, and make sure it compiles and runs.", pc.LastError)
	case ActionExpand:
		guidance = fmt.Sprintf("Coverage is still low. These source lines were never executed: %s\nAdd tests that target exactly those lines.", pc.MissedLines)
	case ActionEdgeCase:
		guidance = "The tests pass but coverage is not 100%. Add edge-case tests: zero values, nil, negative numbers, empty slices, maps and strings, and boundary values."
	}

	var b strings.Builder
	b.WriteString(baseInstruction)
	if guidance != "" {
		b.WriteString("\n")
		b.WriteString(guidance)
	}
	b.WriteString("\nSource:\n")
	b.WriteString(source)
	return b.String()
}

// contextFrom extracts prompt context from the last recorded step.
func contextFrom(history []Step) PromptContext {
	if len(history) == 0 {
		return PromptContext{}
	}
	last := history[len(history)-1]
	var pc PromptContext
	if last.Status == StatusError {
		pc.LastError = last.Details
	}
	if last.Status == StatusCoverage {
		pc.MissedLines = FormatLines(last.MissedLines)
	}
	return pc
}

// FormatLines renders line numbers as "[3, 7, 12]".
func FormatLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = strconv.Itoa(l)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
