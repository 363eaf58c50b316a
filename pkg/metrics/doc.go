/*
Package metrics provides Prometheus metrics collection and exposition for the
landctl control plane.

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
	│  │  Fleet: workers, deploy tasks, projects     │          │
	│  │  API: request count, duration               │          │
	│  │  DeploymentFSM: fan-out, outcomes, duration  │          │
	│  │  Reconciliation: worker liveness cycles     │          │
	│  │  ConfSnapshot: build duration, cache hits    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Fleet metrics:

landctl_workers_total{status}: gauge, total workers by status (online/offline).

landctl_deploy_tasks_total{status}: gauge, total deploy tasks by status.

landctl_projects_total, landctl_tokens_total: gauges.

API metrics:

landctl_api_requests_total{route,status}: counter.

landctl_api_request_duration_seconds{route}: histogram, default buckets.

DeploymentFSM / TaskFanout metrics:

landctl_tasks_fanned_out_total: counter, incremented once per DeployTask row created by Fanout.

landctl_task_outcomes_total{status}: counter, incremented by the review loop as it aggregates worker-reported outcomes.

landctl_deployment_duration_seconds{deploy_type}, landctl_deployments_total{deploy_type,status}: histogram/counter recorded when a deployment reaches a terminal status.

landctl_upload_duration_seconds: histogram around the object store write in DeploymentFSM.Advance.

Worker reconciliation metrics:

landctl_reconciliation_duration_seconds, landctl_reconciliation_cycles_total: recorded by workerregistry's background loop.

ConfSnapshot metrics:

landctl_snapshot_build_duration_seconds, landctl_snapshot_checksum_unchanged_total: recorded by confsnapshot's refresh loop.

# Usage

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.UploadDuration)

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package Init Registration:
  - All metrics registered in init(); MustRegister panics on duplicate registration.

Label Discipline:
  - Labels stay low-cardinality (status, route, deploy_type); IDs never become labels.

Timer Pattern:
  - Create a Timer at operation start, ObserveDuration at the end.

# Health

This package also exposes a small component health registry (RegisterComponent,
GetHealth, GetReadiness) used by the HTTP health/ready/liveness handlers,
independent of the Prometheus registry above.
*/
package metrics
