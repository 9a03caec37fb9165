// Sentinel is a progressive policy rollout and safety control engine.
//
// It advances compliance policies from shadow evaluation through a
// percentage-based canary ladder to full enforcement, driven by live
// traffic metrics:
//   - Shadow evaluation records what a rule would do without enforcing it
//   - Canary rollout enforces on a growing deterministic traffic cohort
//   - A circuit breaker bypasses enforcement when error rates spike
//   - Every state transition lands in an append-only audit trail
//   - Candidate rules can be replayed against recorded history
//
// Usage:
//
//	# Start the engine with default configuration
//	sentinel run
//
//	# Start with a custom configuration file
//	sentinel run --config /etc/sentinel/config.yaml
//
//	# Show version information
//	sentinel version
//
//	# Inspect and override policy state
//	sentinel policy list
//	sentinel policy override pol-1 --stage CANARY --reason "resume rollout"
//
//	# Estimate the impact of a candidate rule
//	sentinel simulate --rule rule.yaml
//
//	# Export the audit trail
//	sentinel audit export --format csv --output transitions.csv
package main

func main() {
	Execute()
}
