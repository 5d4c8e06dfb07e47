// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of status transitions applied",
		},
		[]string{"from_status", "to_status"},
	)

	TransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_rejected_total",
			Help: "Total number of transitions rejected by the transition table",
		},
		[]string{"from_status", "role"},
	)

	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_assignments_total",
			Help: "Total number of assignment decisions by action",
		},
		[]string{"action", "role"},
	)

	AssignmentsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_assignments_failed_total",
			Help: "Total number of assignment decisions that found no officer",
		},
		[]string{"role"},
	)

	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_escalations_total",
			Help: "Total number of stalled applications escalated",
		},
		[]string{"target_role"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "workflow_sweep_duration_seconds",
			Help: "Duration of stall sweep runs in seconds",
		},
		[]string{"outcome"},
	)

	SweepStalledFound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflow_sweep_stalled_found",
			Help: "Stalled applications found by the most recent sweep",
		},
	)
)
