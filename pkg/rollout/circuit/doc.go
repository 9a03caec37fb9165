// Package circuit protects against rapid regressions the slower canary
// loop would not catch in time.
//
// A CLOSED breaker trips to OPEN the moment the windowed error rate
// crosses the policy's threshold. The check runs on an event-driven fast
// path hanging off the metrics aggregator's ingest fan-out, so the
// reaction is sub-tick; a periodic tick backstops it and drives the
// recovery ladder: OPEN waits out its cooldown, HALF_OPEN resumes
// enforcement for a small trial cohort, and the trial's error rate decides
// between closing and re-opening with a doubled, capped cooldown.
//
// Backoff state lives on the policy record itself (open count, cooldown
// deadline), so the controller is stateless and restart-safe. Policies
// pinned to MANUAL are never touched.
package circuit
