/*
Package metrics provides Prometheus metrics collection and exposition for
Glassdome.

The metrics package defines and registers all Glassdome metrics using the
Prometheus client library, providing observability into the execution
engine, the hot spare pool, the network allocator, the state reconciler,
and the lab orchestrator. Metrics are exposed via an HTTP endpoint for
scraping by Prometheus servers; health/readiness/liveness are exposed
alongside them for orchestration probes.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Engine: tasks by state, run duration       │          │
	│  │  Spare pool: counts by status, acquire      │          │
	│  │    outcomes, provision duration, health     │          │
	│  │    check failures                           │          │
	│  │  Allocator: ordinals in use, allocate calls │          │
	│  │  Reconciler: cycle duration/count, drift    │          │
	│  │  Orchestrator: deployments, duration        │          │
	│  │  Platform: adapter call errors by operation │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │   /metrics, /health, /ready, /live          │          │
	│  │   Handler: promhttp.Handler() + health.go   │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Engine metrics (pkg/engine):
  - glassdome_engine_tasks_total{state}: final task count by state for the last run
  - glassdome_engine_run_duration_seconds: wall-clock duration of a Run
  - glassdome_engine_runs_total{outcome}: run count by success/failure

Hot spare pool metrics (pkg/sparepool):
  - glassdome_spare_pool_count{platform_instance,os_family,status}: live gauge
  - glassdome_spare_pool_acquire_total{os_family,outcome}: Acquire calls by outcome (acquired, exhausted, error)
  - glassdome_spare_pool_provision_duration_seconds: clone-to-ready latency
  - glassdome_spare_pool_health_check_failures_total: failed ICMP probes

Allocator metrics (pkg/network):
  - glassdome_allocator_ordinals_in_use: lab ordinals allocated out of 254
  - glassdome_allocator_allocate_total{outcome}: allocation call outcomes

Reconciler metrics (pkg/reconciler):
  - glassdome_reconciliation_duration_seconds: per-cycle duration
  - glassdome_reconciliation_cycles_total: cycles completed
  - glassdome_reconciler_drift_total{resource_kind}: drifted resources observed

Orchestrator metrics (pkg/orchestrator):
  - glassdome_lab_deployments_total{outcome}: Deploy call outcomes
  - glassdome_lab_deployment_duration_seconds: Deploy wall-clock duration

Platform adapter metrics (pkg/platform):
  - glassdome_platform_errors_total{operation}: registered for adapter call
    failures; no package in this module increments it, so it stays at zero

# Health, Readiness, Liveness

health.go exposes a small in-process component registry independent of
Prometheus: RegisterComponent/UpdateComponent record per-component health,
GetHealth aggregates them into an overall status, and GetReadiness treats
store, spare_pool, and reconciler as the critical set that must be
registered and healthy before the process reports ready. LivenessHandler
never depends on component state: it answers as long as the process is
scheduling goroutines.

# Recommended Alerts

No ready spares:
  - Alert: min(glassdome_spare_pool_count{status="ready"}) by (os_family) == 0
  - Action: check adapter connectivity, IP range exhaustion, template availability

Reconciler drift rate:
  - Alert: rate(glassdome_reconciler_drift_total[10m]) > 0
  - Action: inspect the platform for out-of-band changes

Slow spare provisioning:
  - Alert: histogram_quantile(0.95, glassdome_spare_pool_provision_duration_seconds_bucket) > 120
  - Action: check platform clone/boot latency

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
