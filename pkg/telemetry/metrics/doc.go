// Package metrics provides Prometheus metrics collection for Veridion
// Sentinel.
//
// The Collector registers evaluation-path and rollout-controller metric
// sets on a dedicated registry and exposes them through a promhttp
// handler. Label cardinality is bounded per metric so a runaway policy
// set cannot exhaust scrape memory.
package metrics
