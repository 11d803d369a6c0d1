// Package oracle measures the statement coverage a candidate Go test achieves
// against a target Go source file. Every evaluation runs `go test` in its own
// throwaway module, so concurrent evaluations never share state.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
	"golang.org/x/tools/cover"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
)

// Oracle implements schemas.Evaluator on top of the go tool.
type Oracle struct {
	cfg    config.OracleConfig
	logger *zap.Logger
}

var _ schemas.Evaluator = (*Oracle)(nil)

// New validates the configuration and returns an Oracle.
func New(cfg config.OracleConfig, logger *zap.Logger) (*Oracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !modfile.GoVersionRE.MatchString(cfg.GoVersion) {
		return nil, fmt.Errorf("invalid go_version %q", cfg.GoVersion)
	}
	if cfg.SandboxRoot != "" {
		if err := os.MkdirAll(cfg.SandboxRoot, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sandbox root: %w", err)
		}
	}
	return &Oracle{cfg: cfg, logger: logger.Named("oracle")}, nil
}

// Evaluate runs test against source and returns the coverage result. Every
// failure to obtain a result is reported as an *EvalError with a nil result.
func (o *Oracle) Evaluate(ctx context.Context, source, test string) (*schemas.CoverageResult, error) {
	dir, err := os.MkdirTemp(o.cfg.SandboxRoot, "covergen-*")
	if err != nil {
		return nil, &EvalError{Kind: KindSandbox, Err: err}
	}
	defer o.cleanup(dir)

	if err := writeSandbox(dir, o.cfg.GoVersion, source, test); err != nil {
		return nil, &EvalError{Kind: KindSandbox, Err: err}
	}

	out, err := o.runTests(ctx, dir)
	if err != nil {
		o.logger.Warn("Evaluation failed.", zap.String("kind", string(KindOf(err))), zap.Error(errors.Unwrap(err)))
		return nil, err
	}

	profiles, err := cover.ParseProfiles(filepath.Join(dir, profileFile))
	if err != nil {
		o.logger.Debug("No coverage report produced.",
			zap.Int("exit_code", out.exitCode), zap.Duration("duration", out.duration))
		return nil, &EvalError{Kind: KindNoReport, Stdout: out.stdout, Stderr: out.stderr, Err: err}
	}

	// Recent toolchains write a header-only profile even when the test binary
	// never built or died before flushing counters.
	target := findTargetProfile(profiles)
	switch {
	case target != nil:
	case out.exitCode != 0:
		err := fmt.Errorf("go test exited with status %d and recorded no coverage", out.exitCode)
		o.logger.Debug("No coverage recorded.",
			zap.Int("exit_code", out.exitCode), zap.Duration("duration", out.duration))
		return nil, &EvalError{Kind: KindNoReport, Stdout: out.stdout, Stderr: out.stderr, Err: err}
	case len(profiles) == 0:
		// A source without statements has nothing to record.
		target = &cover.Profile{FileName: modulePath + "/" + sourceFile, Mode: "set"}
	default:
		return nil, &EvalError{Kind: KindTargetMissing, Stdout: out.stdout, Stderr: out.stderr}
	}

	result := buildResult(target, normalizeSource(source), out)
	o.logger.Debug("Evaluation complete.",
		zap.Bool("success", result.Success),
		zap.Float64("coverage", result.CoveragePercent),
		zap.Ints("missed_lines", result.MissedLines),
		zap.Duration("duration", out.duration))
	return result, nil
}

func (o *Oracle) cleanup(dir string) {
	if o.cfg.KeepSandbox {
		o.logger.Info("Keeping sandbox.", zap.String("dir", dir))
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		o.logger.Warn("Failed to remove sandbox.", zap.String("dir", dir), zap.Error(err))
	}
}
