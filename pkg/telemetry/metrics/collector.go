package metrics

import (
	"fmt"
	"sync"
	"time"

	"veridion-hq/sentinel/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics in
// Veridion Sentinel. It manages metric registration and provides a
// unified interface for recording metrics across the evaluation path
// and the rollout controllers.
//
// The collector sits on the per-call evaluation path, so updates are
// pre-registered metric instances with no allocation beyond the label
// lookup. A cardinality limiter caps unique policy label sets so a
// runaway policy store cannot exhaust scrape memory.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Evaluation path metrics
	evaluationMetrics *EvaluationMetrics

	// Controller and simulator metrics
	rolloutMetrics *RolloutMetrics

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is used.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "veridion",
//		Subsystem: "sentinel",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "veridion"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "sentinel"
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000), // Max 10K unique label sets
	}

	c.evaluationMetrics = NewEvaluationMetrics(cfg, registry)
	c.rolloutMetrics = NewRolloutMetrics(cfg, registry)

	return c
}

// RecordEvaluation records metrics for a completed policy evaluation.
//
// Parameters:
//   - policyID: Policy identifier
//   - stage: Rollout stage at evaluation time
//   - decision: Decision label ("allow", "shadow_block", "enforced_block", "fail_safe")
//   - duration: Evaluation duration
func (c *Collector) RecordEvaluation(policyID, stage, decision string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	labelSet := fmt.Sprintf("evaluation:%s:%s:%s", policyID, stage, decision)
	if !c.cardinalityLimiter.Allow(labelSet) {
		// Aggregate into "other" to prevent cardinality explosion
		policyID = "other"
	}

	c.evaluationMetrics.RecordEvaluation(policyID, stage, decision, duration)
}

// RecordOutcomesDropped records outcome records dropped on a full
// aggregator buffer.
func (c *Collector) RecordOutcomesDropped(n int) {
	if !c.config.Enabled {
		return
	}

	c.evaluationMetrics.RecordOutcomesDropped(n)
}

// RecordTransition records a committed lifecycle transition.
//
// Parameters:
//   - policyID: Policy identifier
//   - trigger: Transition trigger ("canary_controller", "circuit_breaker", "manual")
//   - direction: Direction label ("promote", "rollback", "trip", "recover", "manual")
func (c *Collector) RecordTransition(policyID, trigger, direction string) {
	if !c.config.Enabled {
		return
	}

	c.rolloutMetrics.RecordTransition(policyID, trigger, direction)
}

// UpdateCircuitState sets the circuit state gauge for a policy.
// Use the CircuitGauge* constants for the state value.
func (c *Collector) UpdateCircuitState(policyID string, state float64) {
	if !c.config.Enabled {
		return
	}

	c.rolloutMetrics.UpdateCircuitState(policyID, state)
}

// UpdateTierPercent sets the canary tier percentage gauge for a policy.
func (c *Collector) UpdateTierPercent(policyID string, percent int) {
	if !c.config.Enabled {
		return
	}

	c.rolloutMetrics.UpdateTierPercent(policyID, percent)
}

// RecordSimulation records a completed simulation run.
//
// Parameters:
//   - impactLevel: Report impact level ("low", "medium", "high", "critical")
//   - duration: Run duration
func (c *Collector) RecordSimulation(impactLevel string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.rolloutMetrics.RecordSimulation(impactLevel, duration)
}

// Registry returns the Prometheus registry used by this collector.
// This can be used to create an HTTP handler for the /metrics endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
