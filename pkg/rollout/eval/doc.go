// Package eval is the synchronous per-request decision path.
//
// Evaluate is a pure function over an in-memory policy snapshot plus a
// non-blocking outcome emit: no store I/O ever happens on the hot path.
// The snapshot is refreshed on a bounded interval and invalidated
// immediately when a controller commits a transition, so evaluators see
// tier and circuit changes within one refresh at worst and one poke at
// best.
//
// Cohort membership is deterministic: FNV-64a over the agent and policy
// ids, mod 100, compared against the tier percentage. The same agent is
// consistently inside or outside the enforced cohort, and inclusion is
// monotonic as the tier grows.
//
// When a policy cannot be read or the snapshot has gone stale past its
// bound, Evaluate fails to the most conservative safe decision: record
// would_block, enforce nothing, raise an alert. It never silently allows
// through an unverifiable state and never silently enforces a rule whose
// correctness could not be confirmed.
package eval
