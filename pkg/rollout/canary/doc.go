// Package canary walks policies up and down the rollout tier ladder based
// on windowed success rates.
//
// The controller is tick driven. Each tick iterates every CANARY policy,
// reads its current tier's metric window, and applies the decision table:
// promote on success_rate >= promote threshold (ties promote), roll back on
// success_rate < rollback threshold (ties hold), otherwise wait. Too few
// samples is an explicit hold, never a promotion. Promotion past the last
// rung moves the policy to ENFORCING; rollback below the first rung returns
// it to SHADOW.
//
// Every transition goes through the store's compare-and-swap, is recorded
// in the audit trail, and raises an alert (rollbacks warn, promotions are
// informational).
package canary
