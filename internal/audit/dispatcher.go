package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Sink delivers audit records somewhere durable (or at least elsewhere).
type Sink interface {
	WriteEvent(ctx context.Context, event AccessEvent) error
	WriteAttempt(ctx context.Context, attempt SignInAttempt) error
}

type envelope struct {
	event   *AccessEvent
	attempt *SignInAttempt
}

// Dispatcher decouples the request path from sink delivery with a
// bounded queue drained by one background worker. Record never blocks:
// when the queue is full the record is dropped and counted.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	queue   chan envelope
	dropped atomic.Uint64
	done    chan struct{}
}

// NewDispatcher constructs a Dispatcher with the given queue capacity.
func NewDispatcher(sink Sink, logger *slog.Logger, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = 256
	}
	return &Dispatcher{
		sink:   sink,
		logger: logger,
		queue:  make(chan envelope, capacity),
		done:   make(chan struct{}),
	}
}

// Record enqueues an access event. Never blocks.
func (d *Dispatcher) Record(event AccessEvent) {
	d.enqueue(envelope{event: &event})
}

// RecordAttempt enqueues sign-in telemetry. Never blocks.
func (d *Dispatcher) RecordAttempt(attempt SignInAttempt) {
	d.enqueue(envelope{attempt: &attempt})
}

// Dropped reports how many records were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) enqueue(env envelope) {
	select {
	case d.queue <- env:
	default:
		n := d.dropped.Add(1)
		if d.logger != nil {
			d.logger.Warn("audit queue full, record dropped", slog.Uint64("dropped_total", n))
		}
	}
}

// Run drains the queue until ctx is cancelled, then finishes whatever is
// already queued before returning. Call from a dedicated goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)
	for {
		select {
		case env := <-d.queue:
			d.deliver(env)
		case <-ctx.Done():
			for {
				select {
				case env := <-d.queue:
					d.deliver(env)
				default:
					return nil
				}
			}
		}
	}
}

// Wait blocks until Run has returned. Test and shutdown helper.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) deliver(env envelope) {
	// Delivery gets its own deadline; the originating request is long
	// gone by the time we run.
	switch {
	case env.event != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.sink.WriteEvent(ctx, *env.event); err != nil && d.logger != nil {
			d.logger.Warn("audit event delivery failed",
				slog.String("event_id", env.event.ID),
				slog.Any("error", err))
		}
	case env.attempt != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.sink.WriteAttempt(ctx, *env.attempt); err != nil && d.logger != nil {
			d.logger.Warn("sign-in telemetry delivery failed", slog.Any("error", err))
		}
	}
}
