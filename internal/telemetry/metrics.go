// Package telemetry exposes Prometheus instruments for the integrators.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stiffnet"

var (
	// StepAttempts counts stepper invocations by method and outcome.
	StepAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "step_attempts_total",
		Help:      "Step attempts by integration method and result.",
	}, []string{"method", "result"})

	// SubStepSize records the size of every committed sub-step.
	SubStepSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "substep_size",
		Help:      "Committed sub-step sizes.",
		Buckets:   prometheus.ExponentialBuckets(1e-12, 10, 24),
	}, []string{"method"})

	NewtonIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "newton_iterations",
		Help:      "Newton-Raphson iterations per implicit step.",
		Buckets:   prometheus.LinearBuckets(1, 1, 20),
	})

	SolverIterations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "solver_iterations",
		Help:      "Krylov iterations per sparse solve.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"method"})

	SolverFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "solver_failures_total",
		Help:      "Sparse solves that did not converge.",
	}, []string{"method"})

	KrylovProducts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "krylov_products",
		Help:      "Operator applications per matrix-exponential action.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 18),
	})

	RetryExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retry_exhausted_total",
		Help:      "Intervals abandoned after the sub-step fell below its minimum.",
	})

	DecayPushIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "decay_push_iterations",
		Help:      "Feed-matrix iterations per zone when pushing to daughters.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
