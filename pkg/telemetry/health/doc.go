// Package health provides health check endpoints for Veridion Sentinel.
//
// # Overview
//
// The health package implements liveness and readiness probes for Kubernetes
// and other orchestration systems, along with version information endpoints.
// It provides a framework for checking the health of the engine's components.
//
// # Endpoints
//
// The package provides three main endpoints:
//
//   - /health: Liveness probe - indicates if the process is running
//   - /ready: Readiness probe - indicates if the engine can serve evaluations
//   - /version: Build information - version, commit, build time
//
// # Usage
//
//	// Create health checker
//	checker := health.New(5 * time.Second)
//
//	// Register component checks
//	checker.RegisterCheck("store", func(ctx context.Context) error {
//	    _, err := store.List(ctx)
//	    return err
//	})
//	checker.RegisterCheck("snapshot", func(ctx context.Context) error {
//	    if snapshot.Age() > staleAfter {
//	        return errors.New("policy snapshot stale")
//	    }
//	    return nil
//	})
//
//	// Add HTTP handlers
//	http.HandleFunc("/health", checker.LivenessHandler())
//	http.HandleFunc("/ready", checker.ReadinessHandler())
//	http.HandleFunc("/version", health.VersionHandler("1.0.0", "abc123", "2026-08-20"))
//
// # Liveness vs Readiness
//
// **Liveness Probe** (/health):
//   - Indicates if the process is alive and running
//   - Returns 200 OK if process is alive
//   - Used by Kubernetes to restart pods
//   - Fast check (<10ms)
//
// **Readiness Probe** (/ready):
//   - Indicates if the engine can serve evaluations
//   - Checks all registered component health checks
//   - Returns 200 OK if all components are healthy
//   - Returns 503 Service Unavailable if any component is unhealthy
//   - Used by Kubernetes to route traffic
//   - May take longer (up to 1s for all checks)
//
// Common component checks:
//   - store: Policy store reachable
//   - history: Outcome history reachable
//   - snapshot: Evaluation snapshot fresh
//   - aggregator: Outcome pipeline running
//
// # Example Response
//
// Readiness response (/ready):
//
//	{
//	    "status": "ready",
//	    "checks": {
//	        "store": {"status": "ok"},
//	        "history": {"status": "ok"},
//	        "snapshot": {"status": "ok"}
//	    },
//	    "timestamp": "2026-08-20T10:30:00Z"
//	}
//
// Degraded response (/ready):
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "store": {"status": "ok"},
//	        "snapshot": {"status": "unhealthy", "message": "policy snapshot stale"}
//	    },
//	    "timestamp": "2026-08-20T10:30:00Z"
//	}
package health
