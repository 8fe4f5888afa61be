package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostmesh_observations_ingested_total",
			Help: "Total number of telemetry observations ingested",
		},
		[]string{"quality"},
	)

	MalformedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostmesh_malformed_messages_total",
			Help: "Total number of unparseable bus messages dropped",
		},
		[]string{"kind"},
	)

	ObservationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostmesh_observations_dropped_total",
			Help: "Total number of observations dropped before evaluation",
		},
		[]string{"reason"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostmesh_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostmesh_alerts_suppressed_total",
			Help: "Total number of alert candidates suppressed",
		},
		[]string{"reason"},
	)

	AlertPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostmesh_alert_publish_failures_total",
			Help: "Total number of failed outward alert publishes",
		},
	)

	PolicyTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostmesh_policy_transitions_total",
			Help: "Total number of policy transition attempts",
		},
		[]string{"action", "result"},
	)

	EnforcementFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostmesh_enforcement_failures_total",
			Help: "Total number of enforcement hook failures or timeouts",
		},
	)

	AuditEntriesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostmesh_audit_entries_recorded_total",
			Help: "Total number of audit entries appended",
		},
	)

	AuditForwardFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostmesh_audit_forward_failures_total",
			Help: "Total number of failed outward audit publishes",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ghostmesh_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one observation",
			Buckets: prometheus.DefBuckets,
		},
	)
)
