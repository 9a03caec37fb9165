package alert

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher fans events out to multiple alerters on a background goroutine
// so controller ticks never wait on a slow notification target. A full
// buffer drops the event; the transition itself is already durable in the
// audit trail, so a lost alert loses convenience, not record.
type Dispatcher struct {
	sinks   []Alerter
	ch      chan Event
	timeout time.Duration
	logger  *slog.Logger

	dropped atomic.Int64

	stopOnce sync.Once
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given sinks. bufferSize <= 0
// defaults to 256.
func NewDispatcher(bufferSize int, sinks ...Alerter) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Dispatcher{
		sinks:   sinks,
		ch:      make(chan Event, bufferSize),
		timeout: 10 * time.Second,
		logger:  slog.Default().With("component", "alert.dispatcher"),
		quit:    make(chan struct{}),
	}
}

// AddSink registers an additional delivery target. It must be called
// before Start.
func (d *Dispatcher) AddSink(sink Alerter) {
	d.sinks = append(d.sinks, sink)
}

// Start begins the delivery goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains buffered events and stops delivery.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.quit) })
	d.wg.Wait()
}

// Alert implements the Alerter interface. It never blocks the caller.
func (d *Dispatcher) Alert(_ context.Context, ev Event) error {
	select {
	case d.ch <- ev:
	default:
		n := d.dropped.Add(1)
		if n%100 == 1 {
			d.logger.Warn("alert buffer full, dropping events", "dropped_total", n)
		}
	}
	return nil
}

// Dropped returns how many events were dropped on a full buffer.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.quit:
			for {
				select {
				case ev := <-d.ch:
					d.deliver(ev)
				default:
					return
				}
			}
		case ev := <-d.ch:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	for _, sink := range d.sinks {
		if err := sink.Alert(ctx, ev); err != nil {
			d.logger.Error("alert delivery failed",
				"policy_id", ev.PolicyID,
				"severity", ev.Severity,
				"error", err,
			)
		}
	}
}
