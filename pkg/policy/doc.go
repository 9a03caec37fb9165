// Package policy defines the rollout state model for the safety control
// engine: the Policy record with its lifecycle stage, canary tier ladder,
// circuit breaker state, and control thresholds, plus the immutable
// PolicyVersion snapshots and the append-only TransitionRecord audit entries
// produced on every state change.
//
// All mutation of a Policy goes through the compare-and-swap contract of
// pkg/policy/store: the two background controllers and manual operator
// overrides contend on Version, never on locks, so a canary promotion and a
// circuit open can never race into an inconsistent combined state.
package policy
