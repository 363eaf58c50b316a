package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "landctl_workers_total",
			Help: "Total number of workers by status",
		},
		[]string{"status"},
	)

	ProjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "landctl_projects_total",
			Help: "Total number of active projects",
		},
	)

	DeployTasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "landctl_deploy_tasks_total",
			Help: "Total number of deploy tasks by status",
		},
		[]string{"status"},
	)

	TokensTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "landctl_tokens_total",
			Help: "Total number of active bearer tokens",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landctl_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "landctl_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// DeploymentFSM / TaskFanout metrics
	TasksFannedOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "landctl_tasks_fanned_out_total",
			Help: "Total number of deploy tasks created by TaskFanout",
		},
	)

	TaskOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landctl_task_outcomes_total",
			Help: "Total number of deploy task outcomes observed by the review loop",
		},
		[]string{"status"},
	)

	DeploymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "landctl_deployment_duration_seconds",
			Help:    "Time from a deployment entering Waiting to reaching a terminal status, by deploy type",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"deploy_type"},
	)

	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landctl_deployments_total",
			Help: "Total number of deployments by type and terminal status",
		},
		[]string{"deploy_type", "status"},
	)

	UploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "landctl_upload_duration_seconds",
			Help:    "Time taken to write a wasm artifact to the object store",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Worker reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "landctl_reconciliation_duration_seconds",
			Help:    "Time taken for a worker reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "landctl_reconciliation_cycles_total",
			Help: "Total number of worker reconciliation cycles completed",
		},
	)

	// ConfSnapshot metrics
	SnapshotBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "landctl_snapshot_build_duration_seconds",
			Help:    "Time taken to build a configuration snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotChecksumUnchangedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "landctl_snapshot_checksum_unchanged_total",
			Help: "Total number of snapshot refresh cycles that short-circuited on an unchanged checksum",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(ProjectsTotal)
	prometheus.MustRegister(DeployTasksTotal)
	prometheus.MustRegister(TokensTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(TasksFannedOut)
	prometheus.MustRegister(TaskOutcomesTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(UploadDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(SnapshotBuildDuration)
	prometheus.MustRegister(SnapshotChecksumUnchangedTotal)
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
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
