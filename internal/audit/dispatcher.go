package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior. SecurityBufferSize sizes the
// reserved lane for security events and defaults to BufferSize.
type Config struct {
	Enabled            bool
	BufferSize         int
	DropIfFull         bool
	SecurityBufferSize int
}

// Dispatcher asynchronously forwards audit events to a sink.
//
// Routine events share one buffer and are shed when DropIfFull is set and the
// buffer is full. Events with Security set travel on their own lane, are
// never shed by DropIfFull and are delivered ahead of routine events; Emit
// waits for room on that lane until the caller's context ends.
type Dispatcher struct {
	cfg             Config
	sink            Sink
	routine         chan Event
	security        chan Event
	done            chan struct{}
	wg              sync.WaitGroup
	dropped         atomic.Uint64
	securityDropped atomic.Uint64
	closed          atomic.Bool
	closeOnce       sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when audit is
// disabled; a nil Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.SecurityBufferSize <= 0 {
		cfg.SecurityBufferSize = cfg.BufferSize
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		routine:  make(chan Event, cfg.BufferSize),
		security: make(chan Event, cfg.SecurityBufferSize),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		// Security events jump the routine backlog.
		select {
		case event := <-d.security:
			d.deliver(event)
			continue
		default:
		}

		select {
		case event := <-d.security:
			d.deliver(event)
		case event := <-d.routine:
			d.deliver(event)
		case <-d.done:
			d.drain(d.security)
			d.drain(d.routine)
			return
		}
	}
}

func (d *Dispatcher) drain(ch chan Event) {
	for {
		select {
		case event := <-ch:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	d.sink.Emit(context.Background(), event)
}

// Emit queues event for delivery. It never blocks past ctx.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if event.Security {
		d.emitSecurity(ctx, event)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.routine <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.routine <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

func (d *Dispatcher) emitSecurity(ctx context.Context, event Event) {
	select {
	case d.security <- event:
		return
	default:
	}

	select {
	case d.security <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
		d.securityDropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events and delivers everything already queued.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports events that were never queued, security events included.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SecurityDropped reports security events abandoned because the caller's
// context ended before the security lane had room.
func (d *Dispatcher) SecurityDropped() uint64 {
	if d == nil {
		return 0
	}
	return d.securityDropped.Load()
}
