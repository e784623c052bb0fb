package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution engine metrics
	EngineTasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "glassdome_engine_tasks_total",
			Help: "Total number of tasks in the last run by state",
		},
		[]string{"state"},
	)

	EngineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "glassdome_engine_run_duration_seconds",
			Help:    "Wall-clock duration of a full engine Run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	EngineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassdome_engine_runs_total",
			Help: "Total number of engine runs by outcome",
		},
		[]string{"outcome"},
	)

	// Hot spare pool metrics
	SparePoolCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "glassdome_spare_pool_count",
			Help: "Current number of hot spares by platform instance, OS family, and status",
		},
		[]string{"platform_instance", "os_family", "status"},
	)

	SparePoolAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassdome_spare_pool_acquire_total",
			Help: "Total number of Acquire calls by OS family and outcome (acquired/exhausted/error)",
		},
		[]string{"os_family", "outcome"},
	)

	SparePoolProvisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "glassdome_spare_pool_provision_duration_seconds",
			Help:    "Time taken to clone and ready a replacement spare in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	SparePoolHealthCheckFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "glassdome_spare_pool_health_check_failures_total",
			Help: "Total number of failed spare health checks",
		},
	)

	// Network allocator metrics
	AllocatorOrdinalsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "glassdome_allocator_ordinals_in_use",
			Help: "Number of lab ordinals currently allocated (out of 254)",
		},
	)

	AllocatorAllocateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassdome_allocator_allocate_total",
			Help: "Total number of lab network allocation calls by outcome",
		},
		[]string{"outcome"},
	)

	// Reconciler metrics (names kept identical to the ancestor scheduler's
	// reconciler metrics: they were already domain-agnostic)
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "glassdome_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "glassdome_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ReconcilerDriftTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassdome_reconciler_drift_total",
			Help: "Total number of drifted resources observed by resource kind",
		},
		[]string{"resource_kind"},
	)

	// Lab orchestrator metrics
	LabDeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassdome_lab_deployments_total",
			Help: "Total number of lab deployments by outcome",
		},
		[]string{"outcome"},
	)

	LabDeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "glassdome_lab_deployment_duration_seconds",
			Help:    "Time taken to deploy a lab in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Platform adapter metrics
	PlatformErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glassdome_platform_errors_total",
			Help: "Total number of platform adapter call failures by operation",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(EngineTasksTotal)
	prometheus.MustRegister(EngineRunDuration)
	prometheus.MustRegister(EngineRunsTotal)

	prometheus.MustRegister(SparePoolCount)
	prometheus.MustRegister(SparePoolAcquireTotal)
	prometheus.MustRegister(SparePoolProvisionDuration)
	prometheus.MustRegister(SparePoolHealthCheckFailuresTotal)

	prometheus.MustRegister(AllocatorOrdinalsInUse)
	prometheus.MustRegister(AllocatorAllocateTotal)

	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconcilerDriftTotal)

	prometheus.MustRegister(LabDeploymentsTotal)
	prometheus.MustRegister(LabDeploymentDuration)

	prometheus.MustRegister(PlatformErrorsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
