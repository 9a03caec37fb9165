// Package telemetry provides observability for Veridion Sentinel.
//
// # Overview
//
// The telemetry package implements structured logging, Prometheus
// metrics, and health check endpoints. It provides visibility into the
// evaluation path and the rollout controllers while staying off the
// per-call hot path.
//
// # Components
//
//   - logging: Structured logging built on log/slog
//   - metrics: Prometheus metrics collection
//   - health: Health check endpoints for the ops listener
//
// # Usage
//
//	// Initialize logging
//	logger, closeLog, err := logging.Setup(&cfg.Telemetry.Logging)
//
//	// Record metrics
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordEvaluation("pol-1", "CANARY", metrics.DecisionEnforcedBlock, 40*time.Microsecond)
//
//	// Serve probes and /metrics
//	mux := http.NewServeMux()
//	health.HTTPMiddleware(mux, checker, version, commit, buildTime)
//	mux.Handle("/metrics", collector.Handler())
package telemetry
