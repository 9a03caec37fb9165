// Package alert is the outbound notification port for rollout state
// transitions.
//
// The engine only decides that and what to alert; delivery reliability,
// rate limiting, and routing belong to the receiving collaborator. The
// Alerter interface keeps that boundary: the controllers hand an Event to
// whatever sink is configured (log, webhook, or an async dispatcher fanning
// out to several) and move on.
package alert
