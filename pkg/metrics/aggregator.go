package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"veridion-hq/sentinel/pkg/outcome"
)

// Config contains configuration for the Aggregator.
type Config struct {
	// BufferSize is the emit channel capacity. When the buffer is full,
	// Emit drops the record rather than blocking the evaluation path.
	// Default: 4096
	BufferSize int

	// WindowHorizon is how far back in-memory counters are kept.
	// Default: 1 hour
	WindowHorizon time.Duration

	// BucketSize is the counter bucket granularity.
	// Default: 10 seconds
	BucketSize time.Duration

	// History optionally persists every record for simulator replay.
	History outcome.Store

	// PersistTimeout bounds each history write.
	// Default: 5 seconds
	PersistTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.WindowHorizon <= 0 {
		cfg.WindowHorizon = time.Hour
	}
	if cfg.BucketSize <= 0 {
		cfg.BucketSize = 10 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	return cfg
}

type seriesKey struct {
	policyID    string
	tierPercent int
}

// Listener is notified after every ingested record for the given policy.
// Listeners run on the aggregator goroutine and must return quickly; the
// circuit breaker fast path uses this to react sub-tick.
type Listener func(policyID string)

// Aggregator ingests evaluation outcomes and maintains windowed counters
// keyed by (policy, tier).
type Aggregator struct {
	cfg    Config
	ch     chan *outcome.Record
	logger *slog.Logger

	mu      sync.RWMutex
	windows map[seriesKey]*rollingWindow

	listenerMu sync.RWMutex
	listeners  []Listener

	dropped         atomic.Int64
	persistFailures atomic.Int64

	stopOnce sync.Once
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewAggregator creates an aggregator; call Start to begin consuming.
func NewAggregator(cfg Config) *Aggregator {
	c := cfg.withDefaults()
	return &Aggregator{
		cfg:     c,
		ch:      make(chan *outcome.Record, c.BufferSize),
		windows: make(map[seriesKey]*rollingWindow),
		logger:  slog.Default().With("component", "metrics.aggregator"),
		quit:    make(chan struct{}),
	}
}

// Start begins the ingest goroutine.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop drains pending records and stops the ingest goroutine.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.quit) })
	a.wg.Wait()
}

// Emit hands a record to the aggregator without blocking. It reports false
// when the buffer was full and the record was dropped; a dropped metrics
// write never changes the compliance decision already returned.
func (a *Aggregator) Emit(rec *outcome.Record) bool {
	select {
	case a.ch <- rec:
		return true
	default:
		n := a.dropped.Add(1)
		if n%1000 == 1 {
			a.logger.Warn("outcome buffer full, dropping records", "dropped_total", n)
		}
		return false
	}
}

// Subscribe registers a listener for ingest notifications.
func (a *Aggregator) Subscribe(fn Listener) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Dropped returns how many records were dropped by Emit.
func (a *Aggregator) Dropped() int64 {
	return a.dropped.Load()
}

// PersistFailures returns how many history writes failed.
func (a *Aggregator) PersistFailures() int64 {
	return a.persistFailures.Load()
}

// TierCounts returns the windowed counts for one policy at one tier.
func (a *Aggregator) TierCounts(policyID string, tierPercent int, window time.Duration) Counts {
	a.mu.RLock()
	rw := a.windows[seriesKey{policyID, tierPercent}]
	a.mu.RUnlock()

	if rw == nil {
		return Counts{}
	}
	return rw.sum(time.Now(), window)
}

// PolicyCounts returns the windowed counts for one policy across all tiers.
// The circuit breaker uses this: an error-rate breach matters regardless of
// which tier the traffic landed in.
func (a *Aggregator) PolicyCounts(policyID string, window time.Duration) Counts {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := time.Now()
	var total Counts
	for key, rw := range a.windows {
		if key.policyID != policyID {
			continue
		}
		total.Add(rw.sum(now, window))
	}
	return total
}

// Ingest folds a record synchronously. Exposed for rebuilding windows from
// history and for tests; live traffic goes through Emit.
func (a *Aggregator) Ingest(rec *outcome.Record) {
	counts := Counts{Total: 1}
	if rec.Failed {
		counts.Failed = 1
	} else {
		counts.Successful = 1
	}
	if rec.EnforcedBlock {
		counts.Blocked = 1
	}

	key := seriesKey{rec.PolicyID, rec.TierPercent}
	a.mu.Lock()
	rw := a.windows[key]
	if rw == nil {
		rw = newRollingWindow(a.cfg.WindowHorizon, a.cfg.BucketSize)
		a.windows[key] = rw
	}
	a.mu.Unlock()

	rw.add(rec.Timestamp, counts)
}

func (a *Aggregator) run() {
	defer a.wg.Done()

	for {
		select {
		case <-a.quit:
			// Drain whatever is already buffered.
			for {
				select {
				case rec := <-a.ch:
					a.process(rec)
				default:
					return
				}
			}
		case rec := <-a.ch:
			a.process(rec)
		}
	}
}

func (a *Aggregator) process(rec *outcome.Record) {
	a.Ingest(rec)

	if a.cfg.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.PersistTimeout)
		if err := a.cfg.History.Append(ctx, rec); err != nil {
			n := a.persistFailures.Add(1)
			if n%100 == 1 {
				a.logger.Error("outcome history write failed", "error", err, "failures_total", n)
			}
		}
		cancel()
	}

	a.listenerMu.RLock()
	listeners := a.listeners
	a.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(rec.PolicyID)
	}
}
