// Package events implements a small named-event registry. Handlers are
// invoked asynchronously with respect to the firer, but strictly in
// fire order, and handlers for the same event run in registration
// order.
package events

import (
	"log/slog"
	"sync"
)

// Handler receives the payload the event was fired with.
type Handler func(payload any)

// Registry dispatches named events to registered handlers.
//
// A single dispatcher goroutine drains the fire queue, so two events
// fired in sequence are always observed in that sequence by every
// handler. Fire never blocks the caller; the queue is unbounded.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	handlers map[string][]Handler
	queue    []firing
	closed   bool
	done     chan struct{}
}

type firing struct {
	name    string
	payload any
}

// NewRegistry creates a registry and starts its dispatcher.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:   logger,
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.dispatch()
	return r
}

// Register adds a handler for the named event. Handlers registered
// first run first.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = append(r.handlers[name], handler)
}

// Fire queues the event for dispatch and returns immediately.
// Fire after Close is a no-op.
func (r *Registry) Fire(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.queue = append(r.queue, firing{name: name, payload: payload})
	r.cond.Signal()
}

// Close stops the dispatcher after it has drained every event already
// fired, and waits for it to exit. Idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.cond.Signal()
	r.mu.Unlock()
	<-r.done
}

func (r *Registry) dispatch() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.closed {
			r.mu.Unlock()
			return
		}
		f := r.queue[0]
		r.queue = r.queue[1:]
		// Snapshot the handler list so a handler may register further
		// handlers without deadlocking.
		handlers := append([]Handler(nil), r.handlers[f.name]...)
		r.mu.Unlock()

		for _, handler := range handlers {
			r.invoke(f.name, handler, f.payload)
		}
	}
}

func (r *Registry) invoke(name string, handler Handler, payload any) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("event handler panic", "event", name, "panic", v)
		}
	}()
	handler(payload)
}
