// Package metrics records search progress as Prometheus metrics on a private
// registry, optionally exported to a node_exporter textfile.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xkilldash9x/covergen/api/schemas"
	"github.com/xkilldash9x/covergen/internal/oracle"
)

const namespace = "covergen"

// Recorder owns the collectors. All methods are safe on a nil receiver so
// callers can leave metrics unwired.
type Recorder struct {
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	evaluationErrors   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	coverage           prometheus.Histogram

	agentSteps   *prometheus.CounterVec
	agentRewards prometheus.Histogram

	generationBest prometheus.Gauge
	generations    prometheus.Counter
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "evaluations_total",
			Help:      "Coverage evaluations by outcome (pass, fail, error).",
		}, []string{"outcome"}),
		evaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "evaluation_errors_total",
			Help:      "Evaluations that produced no coverage result, by failure kind.",
		}, []string{"kind"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall-clock time of a coverage evaluation.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		coverage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "coverage_percent",
			Help:      "Statement coverage reported by successful evaluations.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		agentSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "steps_total",
			Help:      "Agent attempts by chosen action and resulting state.",
		}, []string{"action", "state"}),
		agentRewards: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "reward",
			Help:      "Rewards handed to the Q-learner.",
			Buckets:   []float64{-50, -20, -10, -2, 0, 10, 50, 100, 150},
		}),
		generationBest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "genetic",
			Name:      "best_fitness",
			Help:      "Best fitness of the most recent generation.",
		}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "genetic",
			Name:      "generations_total",
			Help:      "Generations completed by the genetic optimizer.",
		}),
	}
	r.registry.MustRegister(
		r.evaluations, r.evaluationErrors, r.evaluationDuration, r.coverage,
		r.agentSteps, r.agentRewards,
		r.generationBest, r.generations,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveEvaluation records one oracle call.
func (r *Recorder) ObserveEvaluation(d time.Duration, res *schemas.CoverageResult, err error) {
	if r == nil {
		return
	}
	r.evaluationDuration.Observe(d.Seconds())
	switch {
	case err != nil:
		r.evaluations.WithLabelValues("error").Inc()
		kind := string(oracle.KindOf(err))
		if kind == "" {
			kind = "other"
		}
		r.evaluationErrors.WithLabelValues(kind).Inc()
	case res.Success:
		r.evaluations.WithLabelValues("pass").Inc()
		r.coverage.Observe(res.CoveragePercent)
	default:
		r.evaluations.WithLabelValues("fail").Inc()
	}
}

// ObserveStep records one agent attempt.
func (r *Recorder) ObserveStep(action, state string, reward float64) {
	if r == nil {
		return
	}
	r.agentSteps.WithLabelValues(action, state).Inc()
	r.agentRewards.Observe(reward)
}

// ObserveGeneration records the best fitness of a finished generation.
func (r *Recorder) ObserveGeneration(best float64) {
	if r == nil {
		return
	}
	r.generations.Inc()
	r.generationBest.Set(best)
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

type instrumentedEvaluator struct {
	next     schemas.Evaluator
	recorder *Recorder
}

// InstrumentEvaluator wraps next so that every call is observed by r.
func InstrumentEvaluator(next schemas.Evaluator, r *Recorder) schemas.Evaluator {
	if r == nil {
		return next
	}
	return &instrumentedEvaluator{next: next, recorder: r}
}

func (e *instrumentedEvaluator) Evaluate(ctx context.Context, source, test string) (*schemas.CoverageResult, error) {
	start := time.Now()
	res, err := e.next.Evaluate(ctx, source, test)
	e.recorder.ObserveEvaluation(time.Since(start), res, err)
	return res, err
}
