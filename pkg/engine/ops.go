package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/telemetry/health"
)

// Build information, overridden at link time by the release pipeline.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// opsServer is the operational HTTP listener serving Prometheus scrapes
// and Kubernetes probes. It is never the decision path; evaluations are
// library calls.
type opsServer struct {
	addr    string
	server  *http.Server
	checker *health.Checker
	logger  *slog.Logger
}

func newOpsServer(addr string, e *Engine) *opsServer {
	checker := health.New(5 * time.Second)

	checker.RegisterCheck("store", func(ctx context.Context) error {
		_, err := e.store.List(ctx)
		return err
	})
	checker.RegisterCheck("history", func(ctx context.Context) error {
		_, err := e.history.Count(ctx, outcome.Query{Limit: 1})
		return err
	})
	checker.RegisterCheck("snapshot", func(ctx context.Context) error {
		if age := e.snapshot.Age(); age >= e.cfg.Rollout.Snapshot.StaleAfter {
			return fmt.Errorf("policy snapshot stale (age %s)", age)
		}
		return nil
	})

	mux := http.NewServeMux()
	health.HTTPMiddleware(mux, checker, Version, Commit, BuildTime)
	// Kubernetes convention alias.
	mux.HandleFunc("/healthz", checker.LivenessHandler())
	mux.Handle("/metrics", e.collector.Handler())

	return &opsServer{
		addr:    addr,
		checker: checker,
		logger:  slog.Default().With("component", "engine.ops"),
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background. Binding happens
// synchronously so a port conflict fails engine startup instead of
// surfacing later in the logs.
func (o *opsServer) Start() error {
	ln, err := net.Listen("tcp", o.addr)
	if err != nil {
		return fmt.Errorf("ops listener bind failed on %s: %w", o.addr, err)
	}

	o.logger.Info("ops listener started", "address", o.addr)
	go func() {
		if err := o.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("ops listener failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the listener down.
func (o *opsServer) Stop(ctx context.Context) error {
	return o.server.Shutdown(ctx)
}
