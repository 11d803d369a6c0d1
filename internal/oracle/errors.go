package oracle

import (
	"errors"
	"fmt"
)

// Kind classifies why an evaluation produced no coverage result.
type Kind string

const (
	// KindSandbox covers I/O failures while preparing the sandbox.
	KindSandbox Kind = "sandbox"
	// KindLaunch means the go tool could not be started at all.
	KindLaunch Kind = "launch"
	// KindNoReport means the run finished without recording coverage for the
	// target: no profile at all, or a header-only one from a non-zero exit.
	// This is the usual outcome for tests that do not compile or that crash.
	KindNoReport Kind = "no_report"
	// KindTargetMissing means the profile has no entry for the target file.
	KindTargetMissing Kind = "target_missing"
	// KindTimeout means the run exceeded the wall-clock limit and was killed.
	KindTimeout Kind = "timeout"
)

// EvalError is returned for every hard evaluation failure.
type EvalError struct {
	Kind   Kind
	Stdout string
	Stderr string
	Err    error
}

func (e *EvalError) Error() string {
	switch e.Kind {
	case KindNoReport:
		return fmt.Sprintf("no coverage report produced\n--- stderr ---\n%s\n--- stdout ---\n%s", e.Stderr, e.Stdout)
	case KindTargetMissing:
		return fmt.Sprintf("coverage report has no entry for the target source\n--- stderr ---\n%s\n--- stdout ---\n%s", e.Stderr, e.Stdout)
	case KindTimeout:
		return fmt.Sprintf("evaluation timed out: %v\n--- stderr ---\n%s\n--- stdout ---\n%s", e.Err, e.Stderr, e.Stdout)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failure", e.Kind)
}

func (e *EvalError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err is not an EvalError.
func KindOf(err error) Kind {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
