package engine

import (
	"context"

	"veridion-hq/sentinel/pkg/alert"
	"veridion-hq/sentinel/pkg/metrics"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
	telemetry "veridion-hq/sentinel/pkg/telemetry/metrics"
)

// droppedEmitter forwards outcome records to the aggregator and counts
// the ones shed on buffer overflow. The aggregator already logs drops;
// the counter makes them scrapeable.
type droppedEmitter struct {
	agg       *metrics.Aggregator
	collector *telemetry.Collector
}

func (d *droppedEmitter) Emit(rec *outcome.Record) bool {
	if d.agg.Emit(rec) {
		return true
	}
	d.collector.RecordOutcomesDropped(1)
	return false
}

// telemetrySink adapts alert events into Prometheus metrics. Riding the
// dispatcher keeps the controllers free of a collector handle; they
// already publish every committed transition as an event.
type telemetrySink struct {
	engine *Engine
}

func (e *Engine) telemetrySink() alert.Alerter {
	return &telemetrySink{engine: e}
}

// Alert implements alert.Alerter.
func (t *telemetrySink) Alert(_ context.Context, ev alert.Event) error {
	rec := ev.Transition
	if rec == nil {
		return nil
	}

	collector := t.engine.collector
	collector.RecordTransition(rec.PolicyID, triggerLabel(rec.TriggeredBy), transitionDirection(rec, ev.Severity))

	// Gauges follow the record that just committed.
	if p, _ := t.engine.snapshot.Get(rec.PolicyID); p != nil {
		collector.UpdateCircuitState(rec.PolicyID, circuitGauge(p.CircuitState))
		collector.UpdateTierPercent(rec.PolicyID, p.TierPercent())
	}
	return nil
}

// seedGauges publishes the initial per-policy gauges so scrapes see the
// persisted state before the first transition.
func (e *Engine) seedGauges(ctx context.Context) {
	policies, err := e.store.List(ctx)
	if err != nil {
		e.logger.Warn("gauge seed skipped, policy list failed", "error", err)
		return
	}
	for _, p := range policies {
		e.collector.UpdateCircuitState(p.ID, circuitGauge(p.CircuitState))
		e.collector.UpdateTierPercent(p.ID, p.TierPercent())
	}
}

func triggerLabel(t policy.Trigger) string {
	switch t {
	case policy.TriggerCanary:
		return "canary_controller"
	case policy.TriggerCircuit:
		return "circuit_breaker"
	default:
		return "manual"
	}
}

func transitionDirection(rec *policy.TransitionRecord, severity alert.Severity) string {
	switch rec.TriggeredBy {
	case policy.TriggerManual:
		return telemetry.DirectionManual
	case policy.TriggerCircuit:
		if rec.ToState == string(policy.CircuitOpen) {
			return telemetry.DirectionTrip
		}
		return telemetry.DirectionRecover
	default:
		if severity == alert.SeverityWarning {
			return telemetry.DirectionRollback
		}
		return telemetry.DirectionPromote
	}
}

func circuitGauge(state policy.CircuitState) float64 {
	switch state {
	case policy.CircuitOpen:
		return telemetry.CircuitGaugeOpen
	case policy.CircuitHalfOpen:
		return telemetry.CircuitGaugeHalfOpen
	case policy.CircuitManual:
		return telemetry.CircuitGaugeManual
	default:
		return telemetry.CircuitGaugeClosed
	}
}
