package producer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/osintlabs/scantrail/pkg/scantrail"
	"github.com/osintlabs/scantrail/pkg/scantrail/observability"
	"github.com/osintlabs/scantrail/pkg/scantrail/store"
)

// EventStore is the slice of the store the dispatcher writes through.
// *store.Store satisfies it.
type EventStore interface {
	StoreEvent(instanceID string, evt *scantrail.Event, truncateAt int) error
	AppendLog(instanceID, severity, message, component string) error
}

// Dispatcher delivers stored events to the producers watching their type and
// persists whatever they emit, causes before effects.
//
// A producer failure is logged to the scan log and never aborts delivery to
// the other producers. The context is polled between units of work, so a
// scan-wide cancellation takes effect at the next delivery boundary; an
// in-flight store write always completes or fails atomically on its own.
type Dispatcher struct {
	store      EventStore
	registry   *Registry
	instanceID string
	truncateAt int
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTruncate caps stored payloads at n bytes. 0 disables truncation.
func WithTruncate(n int) Option {
	return func(d *Dispatcher) {
		d.truncateAt = n
	}
}

// WithLogger attaches a structured logger for delivery diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics attaches a metrics recorder for store writes and producer
// failures.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher for one scan instance.
func NewDispatcher(st EventStore, reg *Registry, instanceID string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      st,
		registry:   reg,
		instanceID: instanceID,
		metrics:    observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers one already-stored event to every producer watching its
// type. Emitted events are stored in emission order and then dispatched in
// turn, so multi-hop chains within one HandleEvent call land with their
// causes already persisted.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *scantrail.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, p := range d.registry.Watchers(evt.Type) {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger := observability.EnrichLogger(d.logger, d.instanceID, p.Name())

		emitted, err := p.HandleEvent(ctx, evt)
		if err != nil {
			// Producer trouble is a scan-log matter, not a pipeline
			// failure.
			d.recordProducerError(ctx, logger, p, evt, err)
			continue
		}

		for _, out := range emitted {
			began := time.Now()
			err := d.store.StoreEvent(d.instanceID, out, d.truncateAt)
			d.metrics.RecordEventStored(ctx, out.Type, time.Since(began), err)
			if err != nil {
				observability.LogStoreError(d.logger, "store event", err)
				return err
			}
			observability.LogEventStored(logger, out.Type)
			if err := d.Dispatch(ctx, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// DispatchAll delivers a batch of events sequentially.
func (d *Dispatcher) DispatchAll(ctx context.Context, events []*scantrail.Event) error {
	for _, evt := range events {
		if err := d.Dispatch(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// DispatchConcurrent delivers a batch of events with the given number of
// worker goroutines. Events emitted within one HandleEvent call are still
// stored in emission order; no ordering holds across workers. The first
// error cancels the remaining deliveries.
func (d *Dispatcher) DispatchConcurrent(ctx context.Context, events []*scantrail.Event, workers int) error {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan *scantrail.Event)
	errc := make(chan error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for evt := range queue {
				if err := d.Dispatch(ctx, evt); err != nil {
					errc <- err
					cancel()
					return
				}
			}
		}()
	}

feed:
	for _, evt := range events {
		select {
		case queue <- evt:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	select {
	case err := <-errc:
		return err
	default:
		return ctx.Err()
	}
}

func (d *Dispatcher) recordProducerError(ctx context.Context, logger *slog.Logger, p Producer, evt *scantrail.Event, err error) {
	// Best effort on both channels; a lost line never stops the scan.
	_ = d.store.AppendLog(d.instanceID, store.SeverityError,
		"producer "+p.Name()+" failed on "+evt.Type+": "+err.Error(), p.Name())
	d.metrics.RecordProducerError(ctx, p.Name())
	observability.LogProducerError(logger, evt.Type, err)
	if latched, ok := p.(interface{ Failed() bool }); ok && latched.Failed() {
		observability.LogProducerLatched(logger, err)
	}
}
