package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
// Pass to components that need to record metrics.
type Metrics struct {
	EvaluationsTotal    *prometheus.CounterVec
	EvaluationDuration  *prometheus.HistogramVec
	ActionsTotal        *prometheus.CounterVec
	ActiveExecutions    prometheus.Gauge
	TransitionsTotal    *prometheus.CounterVec
	SchedulerIterations prometheus.Counter
	RegisteredRules     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gameflow",
				Name:      "rule_evaluations_total",
				Help:      "Total number of rule evaluations by outcome",
			},
			[]string{"outcome"}, // outcome=allowed/denied/failed
		),
		EvaluationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gameflow",
				Name:      "rule_evaluation_duration_seconds",
				Help:      "Rule evaluation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"category"},
		),
		ActionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gameflow",
				Name:      "actions_total",
				Help:      "Total number of dispatched rule actions by outcome",
			},
			[]string{"kind", "outcome"}, // outcome=ok/failed/unhandled
		),
		ActiveExecutions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gameflow",
				Name:      "active_workflow_executions",
				Help:      "Number of workflow executions currently running or paused",
			},
		),
		TransitionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gameflow",
				Name:      "workflow_transitions_total",
				Help:      "Total number of workflow state transitions by condition kind",
			},
			[]string{"condition"},
		),
		SchedulerIterations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "gameflow",
				Name:      "continuous_evaluation_iterations_total",
				Help:      "Total number of continuous evaluation iterations",
			},
		),
		RegisteredRules: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gameflow",
				Name:      "registered_rules",
				Help:      "Number of rules currently registered",
			},
		),
	}
}

// NopMetrics returns metrics bound to a throwaway registry, for tests and
// callers that do not scrape.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
