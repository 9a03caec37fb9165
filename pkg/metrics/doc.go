// Package metrics aggregates evaluation outcomes into time-bucketed
// counters per policy and rollout tier.
//
// The aggregator consumes OutcomeRecords from a buffered channel fed by the
// evaluation path's non-blocking emit, folds them into rolling windows of
// fixed-size buckets, optionally persists them to the outcome history store,
// and fans a notification out to registered listeners on every ingest. The
// circuit breaker's fast path hangs off that fan-out so it reacts to an
// error-rate breach within one ingest, not one controller tick.
//
// Windows are derived state: they can always be rebuilt from the outcome
// history, so in-memory counters expiring past the retention horizon lose
// nothing that matters.
package metrics
