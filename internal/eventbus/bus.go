// Package eventbus implements a typed synchronous publish/subscribe
// registry: subscribe appends a handler to an insertion-ordered list for
// an event kind, publish invokes every handler for that kind in
// subscription order on the publisher's own goroutine. Handlers get
// in-call panic recovery instead of channel back-pressure drops: the bus
// is not a queue, so there is nothing to drop.
package eventbus

import (
	"sync"

	"github.com/gwlsn/transcast/internal/events"
	"github.com/gwlsn/transcast/internal/logger"
)

// Handler receives published events. It must not block for long; the bus
// calls handlers synchronously on the publisher's goroutine.
type Handler func(events.Event)

// Bus is a typed, synchronous, in-process publish/subscribe registry.
// The zero value is not usable; construct with New.
type Bus struct {
	mu   sync.RWMutex
	subs map[events.Kind][]Handler
	done bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[events.Kind][]Handler)}
}

// Subscribe appends handler to the insertion-ordered list for kind.
// Safe to call after publishing has started; the new handler only
// observes events published after it subscribes.
func (b *Bus) Subscribe(kind events.Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], handler)
}

// Publish invokes every handler registered for e.Kind, in subscription
// order, on the calling goroutine. A handler that panics is recovered and
// logged; subsequent handlers still run. Publish is a no-op after Close.
func (b *Bus) Publish(e events.Event) {
	b.mu.RLock()
	if b.done {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler, len(b.subs[e.Kind]))
	copy(handlers, b.subs[e.Kind])
	b.mu.RUnlock()

	for _, h := range handlers {
		invoke(h, e)
	}
}

// invoke calls a single handler, recovering and logging any panic so one
// misbehaving subscriber cannot prevent the rest from seeing the event.
func invoke(h Handler, e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked", "kind", e.Kind, "panic", r)
		}
	}()
	h(e)
}

// Close marks the bus as shut down. No handler is invoked after Close
// returns; in-flight Publish calls still complete.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
}
