package agent

import (
	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/config"
)

// Classify maps an evaluation outcome to a state. err covers both generator
// and oracle failures.
func Classify(res *schemas.CoverageResult, err error, th config.ThresholdsConfig) State {
	if err != nil || res == nil {
		return StateSyntaxError
	}
	if !res.Success {
		return StateTestFailure
	}
	cov := res.CoveragePercent
	switch {
	case cov >= 100:
		return StatePerfect
	case cov < th.VeryLow:
		return StateCoverageVeryLow
	case cov < th.Low:
		return StateCoverageLow
	case cov < th.Medium:
		return StateCoverageMedium
	default:
		return StateCoverageHigh
	}
}

// Reward shapes the learning signal. delta is the coverage change against the
// previous coverage and only matters for coverage bands.
func Reward(next State, attempt int, delta float64, r config.RewardsConfig) float64 {
	switch next {
	case StateSyntaxError:
		return r.Error
	case StateTestFailure:
		return r.TestFailure
	case StatePerfect:
		return r.Perfect + r.PerfectBonus/float64(attempt)
	}
	switch {
	case delta > 0:
		return delta * r.ProgressScale
	case delta < 0:
		return r.Regression
	default:
		return r.Stall
	}
}
