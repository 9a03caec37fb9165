package health

import (
	"context"
	"sync"
	"time"
)

// Status is a coarse health verdict for a component or the whole engine.
type Status string

const (
	// StatusOK marks a passing component check or a live process.
	StatusOK Status = "ok"

	// StatusReady marks an engine that can serve evaluations.
	StatusReady Status = "ready"

	// StatusDegraded marks an engine with at least one failing component.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy marks a failing component check.
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc checks one engine component (policy store, outcome history,
// evaluation snapshot). It returns nil when the component can serve.
type CheckFunc func(ctx context.Context) error

// CheckResult is the verdict for one component.
type CheckResult struct {
	Status Status `json:"status"`

	// Message carries the failure detail for unhealthy components.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// HealthStatus is the aggregated engine verdict served on the ops listener.
type HealthStatus struct {
	Status Status `json:"status"`

	// Checks holds per-component verdicts; empty on liveness responses.
	Checks map[string]CheckResult `json:"checks,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Checker runs registered component checks, each bounded by a per-check
// timeout so one stuck backend cannot wedge the readiness endpoint.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	checkTimeout time.Duration
}

// New creates a checker. A zero timeout defaults to 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
	}
}

// RegisterCheck adds or replaces the check for a named component.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes the check for a named component.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// CheckLiveness reports whether the process is alive. It never touches
// storage, so it stays fast enough for tight orchestrator probe budgets.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
}

// CheckReadiness runs every registered component check concurrently and
// aggregates the verdicts. Any unhealthy component degrades the whole
// engine; an engine with no checks registered is ready.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	if len(checks) == 0 {
		return HealthStatus{
			Status:    StatusReady,
			Checks:    results,
			Timestamp: time.Now(),
		}
	}

	type named struct {
		name   string
		result CheckResult
	}
	verdicts := make(chan named, len(checks))

	for name, check := range checks {
		go func(name string, check CheckFunc) {
			verdicts <- named{name: name, result: c.runCheck(ctx, check)}
		}(name, check)
	}

	status := StatusReady
	for range checks {
		v := <-verdicts
		results[v.name] = v.result
		if v.result.Status == StatusUnhealthy {
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// runCheck executes one check under the per-check timeout. The check runs
// in its own goroutine so a CheckFunc that ignores its context still
// cannot hold the readiness response past the deadline.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		result := CheckResult{Status: StatusOK, Duration: time.Since(start)}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
		}
		return result
	case <-checkCtx.Done():
		return CheckResult{
			Status:   StatusUnhealthy,
			Message:  "health check timeout",
			Duration: time.Since(start),
		}
	}
}

// GetCheck returns the registered check for a component, or nil.
func (c *Checker) GetCheck(name string) CheckFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checks[name]
}

// ListChecks returns the names of all registered checks.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	return names
}

// CheckCount returns the number of registered checks.
func (c *Checker) CheckCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.checks)
}
