package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"veridion-hq/sentinel/pkg/alert"
	"veridion-hq/sentinel/pkg/audit"
	"veridion-hq/sentinel/pkg/config"
	"veridion-hq/sentinel/pkg/metrics"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy/store"
	"veridion-hq/sentinel/pkg/rollout/canary"
	"veridion-hq/sentinel/pkg/rollout/circuit"
	"veridion-hq/sentinel/pkg/rollout/eval"
	"veridion-hq/sentinel/pkg/simulate"
	telemetry "veridion-hq/sentinel/pkg/telemetry/metrics"
)

// Engine owns the full rollout pipeline.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	store      store.Store
	history    outcome.Store
	trail      audit.Trail
	aggregator *metrics.Aggregator
	retention  *metrics.RetentionScheduler
	snapshot   *eval.Snapshot
	evaluator  *eval.Evaluator
	canary     *canary.Controller
	circuit    *circuit.Controller
	simulator  *simulate.Simulator
	dispatcher *alert.Dispatcher
	collector  *telemetry.Collector

	cron *cron.Cron
	ops  *opsServer

	mu      sync.Mutex
	running bool
}

// New builds an engine from configuration. Nothing starts running until
// Start is called.
func New(cfg *config.Config) (*Engine, error) {
	logger := slog.Default().With("component", "engine")

	s, err := openPolicyStore(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy store: %w", err)
	}

	history, err := openHistory(&cfg.History)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open outcome history: %w", err)
	}

	trail, err := openTrail(&cfg.Audit)
	if err != nil {
		s.Close()
		history.Close()
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}

	collector := telemetry.NewCollector(&cfg.Telemetry.Metrics, nil)

	dispatcher, err := buildDispatcher(&cfg.Alerts)
	if err != nil {
		s.Close()
		history.Close()
		trail.Close()
		return nil, err
	}

	aggregator := metrics.NewAggregator(metrics.Config{
		BufferSize:     cfg.Aggregator.BufferSize,
		WindowHorizon:  cfg.Aggregator.WindowHorizon,
		BucketSize:     cfg.Aggregator.BucketSize,
		History:        history,
		PersistTimeout: cfg.Aggregator.PersistTimeout,
	})

	retention := metrics.NewRetentionScheduler(metrics.RetentionConfig{
		Schedule:  cfg.History.RetentionSchedule,
		RetainFor: cfg.History.RetainFor,
	}, history)

	snapshot := eval.NewSnapshot(eval.SnapshotConfig{
		RefreshInterval: cfg.Rollout.Snapshot.RefreshInterval,
		StaleAfter:      cfg.Rollout.Snapshot.StaleAfter,
	}, s)

	evaluator := eval.NewEvaluator(eval.EvaluatorConfig{
		HalfOpenTrialPercent: cfg.Rollout.Evaluator.HalfOpenTrialPercent,
	}, snapshot, &droppedEmitter{agg: aggregator, collector: collector}, dispatcher)

	canaryCtrl := canary.NewController(canary.Config{
		Interval:   cfg.Rollout.Canary.Interval,
		CASRetries: cfg.Rollout.Canary.CASRetries,
	}, s, aggregator, trail, dispatcher, snapshot)

	circuitCfg := circuit.Config{
		RecoveryInterval: cfg.Rollout.Circuit.RecoveryInterval,
		MinSamples:       cfg.Rollout.Circuit.MinSamples,
		MaxCooldown:      cfg.Rollout.Circuit.MaxCooldown,
		OnClose:          circuit.OnClose(cfg.Rollout.Circuit.OnClose),
		SafeTierIndex:    cfg.Rollout.Circuit.SafeTierIndex,
		CheckInterval:    cfg.Rollout.Circuit.CheckInterval,
		CASRetries:       cfg.Rollout.Circuit.CASRetries,
	}
	if err := circuitCfg.Validate(); err != nil {
		s.Close()
		history.Close()
		trail.Close()
		return nil, err
	}
	circuitCtrl := circuit.NewController(circuitCfg, s, aggregator, trail, dispatcher, snapshot)

	simulator := simulate.NewSimulator(simulate.Config{
		MaxRows:          cfg.Simulator.MaxRows,
		MaxScanDuration:  cfg.Simulator.MaxScanDuration,
		SampleSaturation: cfg.Simulator.SampleSaturation,
	}, history)

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		store:      s,
		history:    history,
		trail:      trail,
		aggregator: aggregator,
		retention:  retention,
		snapshot:   snapshot,
		evaluator:  evaluator,
		canary:     canaryCtrl,
		circuit:    circuitCtrl,
		simulator:  simulator,
		dispatcher: dispatcher,
		collector:  collector,
		cron:       cron.New(),
	}

	// Committed transitions reach Prometheus through an alert sink rather
	// than a collector handle in every controller.
	dispatcher.AddSink(e.telemetrySink())

	// The circuit fast path rides the aggregator's ingest notifications.
	aggregator.Subscribe(circuitCtrl.Observe)

	if cfg.Telemetry.Ops.Enabled {
		e.ops = newOpsServer(cfg.Telemetry.Ops.ListenAddress, e)
	}

	return e, nil
}

// Start brings the pipeline up: initial snapshot load, background
// goroutines, controller schedules, retention, and the ops listener.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	started := false
	defer func() {
		if !started {
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
		}
	}()

	if err := e.snapshot.Refresh(ctx); err != nil {
		return fmt.Errorf("initial snapshot load failed: %w", err)
	}

	e.dispatcher.Start()
	e.aggregator.Start()
	e.snapshot.Start()
	e.circuit.Start()

	if _, err := e.cron.AddFunc(everySpec(e.canary.Interval()), func() {
		e.canary.Tick(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule canary ticks: %w", err)
	}
	if _, err := e.cron.AddFunc(everySpec(e.circuit.Interval()), func() {
		e.circuit.Tick(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule circuit ticks: %w", err)
	}
	e.cron.Start()

	if err := e.retention.Start(ctx); err != nil {
		return err
	}

	if e.ops != nil {
		if err := e.ops.Start(); err != nil {
			return err
		}
	}

	e.seedGauges(ctx)
	started = true

	e.logger.Info("engine started",
		"canary_interval", e.canary.Interval(),
		"circuit_interval", e.circuit.Interval(),
		"ops_enabled", e.ops != nil,
	)
	return nil
}

// Stop shuts the pipeline down in dependency order: stop producing work,
// drain the pipeline, then close storage.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.logger.Info("engine stopping")

	if e.ops != nil {
		if err := e.ops.Stop(ctx); err != nil {
			e.logger.Error("ops listener shutdown failed", "error", err)
		}
	}

	cronCtx := e.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	e.retention.Stop()
	e.circuit.Stop()
	e.snapshot.Stop()
	e.aggregator.Stop()
	e.dispatcher.Stop()

	err := e.closeStorage()
	e.logger.Info("engine stopped")
	return err
}

// Reload applies a changed configuration to the running pipeline.
// Controller thresholds, retry budgets, recovery targets, and simulator
// budgets take effect on the next tick, fast-path check, or run. Storage
// backends, the ops listener, and tick cadence are fixed at startup and
// need a restart to change.
func (e *Engine) Reload(cfg *config.Config) error {
	if err := e.circuit.UpdateConfig(circuit.Config{
		RecoveryInterval: cfg.Rollout.Circuit.RecoveryInterval,
		MinSamples:       cfg.Rollout.Circuit.MinSamples,
		MaxCooldown:      cfg.Rollout.Circuit.MaxCooldown,
		OnClose:          circuit.OnClose(cfg.Rollout.Circuit.OnClose),
		SafeTierIndex:    cfg.Rollout.Circuit.SafeTierIndex,
		CheckInterval:    cfg.Rollout.Circuit.CheckInterval,
		CASRetries:       cfg.Rollout.Circuit.CASRetries,
	}); err != nil {
		return fmt.Errorf("circuit settings rejected: %w", err)
	}

	e.canary.UpdateConfig(canary.Config{
		Interval:   cfg.Rollout.Canary.Interval,
		CASRetries: cfg.Rollout.Canary.CASRetries,
	})

	e.simulator.UpdateConfig(simulate.Config{
		MaxRows:          cfg.Simulator.MaxRows,
		MaxScanDuration:  cfg.Simulator.MaxScanDuration,
		SampleSaturation: cfg.Simulator.SampleSaturation,
	})

	e.logger.Info("configuration reloaded")
	return nil
}

// Close releases storage backends without a Start/Stop cycle. One-shot
// commands use it; a running engine is shut down with Stop instead.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine is running, call Stop")
	}
	return e.closeStorage()
}

func (e *Engine) closeStorage() error {
	var firstErr error
	for _, closer := range []func() error{e.trail.Close, e.history.Close, e.store.Close} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// everySpec renders a duration as a cron @every descriptor.
func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

func openPolicyStore(cfg *config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(&store.SQLiteConfig{
			Path:         cfg.SQLitePath,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			WALMode:      cfg.WALMode,
			BusyTimeout:  cfg.BusyTimeout,
		})
	}
}

func openHistory(cfg *config.HistoryConfig) (outcome.Store, error) {
	switch cfg.Backend {
	case "memory":
		return outcome.NewMemoryStore(), nil
	default:
		sc := outcome.DefaultSQLiteConfig()
		sc.Path = cfg.SQLitePath
		return outcome.NewSQLiteStore(sc)
	}
}

func openTrail(cfg *config.AuditConfig) (audit.Trail, error) {
	switch cfg.Backend {
	case "memory":
		return audit.NewMemoryTrail(), nil
	default:
		tc := audit.DefaultSQLiteTrailConfig()
		tc.Path = cfg.SQLitePath
		return audit.NewSQLiteTrail(tc)
	}
}

func buildDispatcher(cfg *config.AlertsConfig) (*alert.Dispatcher, error) {
	sinks := []alert.Alerter{alert.NewLogAlerter()}

	if cfg.Webhook.Enabled {
		wh, err := alert.NewWebhookAlerter(alert.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Timeout: cfg.Webhook.Timeout,
			Headers: cfg.Webhook.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build webhook alerter: %w", err)
		}
		sinks = append(sinks, wh)
	}

	return alert.NewDispatcher(cfg.BufferSize, sinks...), nil
}
