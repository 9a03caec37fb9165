// Package engine wires the rollout components into a running system.
//
// The engine owns the policy store, the outcome history, the metrics
// aggregator, the evaluation snapshot, both controllers, the impact
// simulator, the audit trail, and the alert dispatcher. It schedules
// controller ticks on a cron runner, bridges committed transitions into
// Prometheus metrics, serves the ops listener (/metrics, /healthz), and
// shuts the pipeline down in dependency order.
//
// Callers interact through Evaluate for the per-request decision,
// Simulate for impact reports, Override for operator state changes, and
// the policy CRUD passthroughs.
package engine
