package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_workflows_created_total",
			Help: "Total number of research workflows created",
		},
		[]string{"depth"},
	)

	WorkflowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_workflows_started_total",
			Help: "Total number of research workflow runs started",
		},
		[]string{"depth"},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_workflows_completed_total",
			Help: "Total number of research workflows reaching a terminal state",
		},
		[]string{"status", "reason"},
	)

	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_workflow_duration_seconds",
			Help:    "Research workflow duration from start to terminal state",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	ScheduleFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_schedule_failures_total",
			Help: "Research workflows that could not be scheduled",
		},
	)

	// Exploration metrics
	Explorations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_explorations_total",
			Help: "Sub-question explorations by result",
		},
		[]string{"result"},
	)

	ExplorationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_exploration_duration_seconds",
			Help:    "Duration of one sub-question exploration",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExplorationFiles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_exploration_files",
			Help:    "Files found per exploration",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	// Readiness metrics
	ReadinessWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_readiness_wait_seconds",
			Help:    "Time spent waiting for capability providers",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"mode", "result"},
	)

	// Delivery metrics
	TranscriptAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_transcript_appends_total",
			Help: "Transcript entries appended by terminal status",
		},
		[]string{"status"},
	)

	TrackerDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_tracker_deliveries_total",
			Help: "Tracker comment attempts by outcome",
		},
		[]string{"result"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_http_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"route", "method", "code"},
	)
)

// RecordWorkflowMetrics records a terminal workflow transition
func RecordWorkflowMetrics(status, reason string, duration time.Duration) {
	WorkflowsCompleted.WithLabelValues(status, reason).Inc()
	if duration > 0 {
		WorkflowDuration.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// RecordExploration records one exploration outcome
func RecordExploration(success bool, files int, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	Explorations.WithLabelValues(result).Inc()
	ExplorationFiles.Observe(float64(files))
	ExplorationDuration.Observe(duration.Seconds())
}

// RecordReadiness records a readiness wait
func RecordReadiness(mode string, ready bool, waited time.Duration) {
	result := "ready"
	if !ready {
		result = "timeout"
	}
	ReadinessWait.WithLabelValues(mode, result).Observe(waited.Seconds())
}
