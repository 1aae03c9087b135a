package executor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// executorMetrics holds Prometheus metrics for the check execution pass.
type executorMetrics struct {
	queueDepth      prometheus.Gauge
	activeWorkers   prometheus.Gauge
	completedChecks prometheus.Counter
	droppedChecks   prometheus.Counter
	failedChecks    prometheus.Counter
	retries         prometheus.Counter
	checkDuration   prometheus.Histogram
}

// Singleton pattern for metrics (avoid double registration in tests).
var (
	execMetricsInstance *executorMetrics
	execMetricsOnce     sync.Once
	execDefaultRegistry = prometheus.DefaultRegisterer
)

// newExecutorMetrics initializes and registers Prometheus metrics using singleton pattern.
func newExecutorMetrics() *executorMetrics {
	execMetricsOnce.Do(func() {
		execMetricsInstance = &executorMetrics{
			queueDepth: promauto.With(execDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "release_gate_executor_queue_depth",
				Help: "Current number of checks waiting in queue",
			}),
			activeWorkers: promauto.With(execDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "release_gate_executor_active_workers",
				Help: "Current number of workers executing checks",
			}),
			completedChecks: promauto.With(execDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "release_gate_executor_completed_checks_total",
				Help: "Total number of executed checks",
			}),
			droppedChecks: promauto.With(execDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "release_gate_executor_dropped_checks_total",
				Help: "Total number of checks dropped due to full queue",
			}),
			failedChecks: promauto.With(execDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "release_gate_executor_failed_checks_total",
				Help: "Total number of checks that ended FAIL",
			}),
			retries: promauto.With(execDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "release_gate_executor_retries_total",
				Help: "Total number of retry attempts across all checks",
			}),
			checkDuration: promauto.With(execDefaultRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "release_gate_executor_check_duration_seconds",
				Help:    "Time taken to execute checks including retries",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			}),
		}
	})
	return execMetricsInstance
}

// resetExecutorMetricsForTesting resets the metrics singleton for test isolation.
// This should only be called from tests.
func resetExecutorMetricsForTesting() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	execDefaultRegistry = reg
	execMetricsInstance = nil
	execMetricsOnce = sync.Once{}
	return reg
}
