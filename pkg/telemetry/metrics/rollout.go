package metrics

import (
	"time"

	"veridion-hq/sentinel/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RolloutMetrics tracks metrics for the canary and circuit breaker
// controllers and the impact simulator.
//
// Metrics:
//   - veridion_sentinel_transitions_total: Lifecycle transitions by policy, trigger, and direction
//   - veridion_sentinel_circuit_state: Current circuit state per policy
//   - veridion_sentinel_tier_percent: Current canary tier percentage per policy
//   - veridion_sentinel_simulations_total: Simulation runs by impact level
//   - veridion_sentinel_simulation_duration_seconds: Simulation run duration
type RolloutMetrics struct {
	// Lifecycle transitions committed by the controllers
	transitionsTotal *prometheus.CounterVec

	// Circuit state gauge (0=closed, 1=half_open, 2=open, 3=manual)
	circuitState *prometheus.GaugeVec

	// Current tier percentage gauge
	tierPercent *prometheus.GaugeVec

	// Simulation runs by impact level
	simulationsTotal *prometheus.CounterVec

	// Simulation run duration histogram
	simulationDuration prometheus.Histogram
}

// Transition direction label values.
const (
	DirectionPromote  = "promote"
	DirectionRollback = "rollback"
	DirectionTrip     = "trip"
	DirectionRecover  = "recover"
	DirectionManual   = "manual"
)

// Circuit state gauge values.
const (
	CircuitGaugeClosed   = 0
	CircuitGaugeHalfOpen = 1
	CircuitGaugeOpen     = 2
	CircuitGaugeManual   = 3
)

// NewRolloutMetrics creates and registers rollout metrics with the
// provided registry.
func NewRolloutMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RolloutMetrics {
	rm := &RolloutMetrics{
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "transitions_total",
				Help:      "Total lifecycle transitions by trigger and direction",
			},
			[]string{"policy_id", "trigger", "direction"},
		),

		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "circuit_state",
				Help:      "Current circuit state (0=closed, 1=half_open, 2=open, 3=manual)",
			},
			[]string{"policy_id"},
		),

		tierPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tier_percent",
				Help:      "Current canary tier percentage",
			},
			[]string{"policy_id"},
		),

		simulationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "simulations_total",
				Help:      "Total simulation runs by impact level",
			},
			[]string{"impact_level"},
		),

		simulationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "simulation_duration_seconds",
				Help:      "Duration of simulation runs in seconds",
				// History scans are bounded at 30s by default
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to 20s
			},
		),
	}

	registry.MustRegister(
		rm.transitionsTotal,
		rm.circuitState,
		rm.tierPercent,
		rm.simulationsTotal,
		rm.simulationDuration,
	)

	return rm
}

// RecordTransition records a committed lifecycle transition.
//
// Parameters:
//   - policyID: Policy identifier
//   - trigger: Transition trigger ("canary_controller", "circuit_breaker", "manual")
//   - direction: Direction label ("promote", "rollback", "trip", "recover", "manual")
func (rm *RolloutMetrics) RecordTransition(policyID, trigger, direction string) {
	rm.transitionsTotal.WithLabelValues(policyID, trigger, direction).Inc()
}

// UpdateCircuitState sets the circuit state gauge for a policy.
func (rm *RolloutMetrics) UpdateCircuitState(policyID string, state float64) {
	rm.circuitState.WithLabelValues(policyID).Set(state)
}

// UpdateTierPercent sets the tier percentage gauge for a policy.
func (rm *RolloutMetrics) UpdateTierPercent(policyID string, percent int) {
	rm.tierPercent.WithLabelValues(policyID).Set(float64(percent))
}

// RecordSimulation records a completed simulation run.
func (rm *RolloutMetrics) RecordSimulation(impactLevel string, duration time.Duration) {
	rm.simulationsTotal.WithLabelValues(impactLevel).Inc()
	rm.simulationDuration.Observe(duration.Seconds())
}
