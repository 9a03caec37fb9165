package metrics

import (
	"time"

	"veridion-hq/sentinel/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EvaluationMetrics tracks metrics for the policy evaluation path.
//
// Metrics:
//   - veridion_sentinel_evaluations_total: Total evaluations by policy, stage, and decision
//   - veridion_sentinel_evaluation_duration_seconds: Evaluation duration
//   - veridion_sentinel_outcomes_dropped_total: Outcome records dropped by the aggregator buffer
type EvaluationMetrics struct {
	// Total evaluations
	evaluationsTotal *prometheus.CounterVec

	// Evaluation duration histogram
	evaluationDuration *prometheus.HistogramVec

	// Outcome records dropped on a full aggregator buffer
	outcomesDropped prometheus.Counter
}

// Evaluation decision label values.
const (
	DecisionAllow         = "allow"
	DecisionShadowBlock   = "shadow_block"
	DecisionEnforcedBlock = "enforced_block"
	DecisionFailSafe      = "fail_safe"
)

// NewEvaluationMetrics creates and registers evaluation metrics with the
// provided registry.
func NewEvaluationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of policy evaluations",
			},
			[]string{"policy_id", "stage", "decision"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				// Evaluations run against an in-memory snapshot (< 1ms)
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 12), // 1µs to 2ms
			},
			[]string{"policy_id"},
		),

		outcomesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "outcomes_dropped_total",
				Help:      "Total outcome records dropped on a full aggregator buffer",
			},
		),
	}

	registry.MustRegister(
		em.evaluationsTotal,
		em.evaluationDuration,
		em.outcomesDropped,
	)

	return em
}

// RecordEvaluation records a completed evaluation.
//
// Parameters:
//   - policyID: Policy identifier
//   - stage: Rollout stage at evaluation time ("SHADOW", "CANARY", ...)
//   - decision: Decision label ("allow", "shadow_block", "enforced_block", "fail_safe")
//   - duration: Time taken to evaluate
func (em *EvaluationMetrics) RecordEvaluation(policyID, stage, decision string, duration time.Duration) {
	em.evaluationsTotal.WithLabelValues(policyID, stage, decision).Inc()
	em.evaluationDuration.WithLabelValues(policyID).Observe(duration.Seconds())
}

// RecordOutcomesDropped adds n to the dropped-outcome counter.
func (em *EvaluationMetrics) RecordOutcomesDropped(n int) {
	em.outcomesDropped.Add(float64(n))
}
