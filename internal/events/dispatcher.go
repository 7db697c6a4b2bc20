package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventHandler handles a published escalation event.
type EventHandler func(context.Context, Event) error

// Dispatcher fans escalation lifecycle events out to named handlers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, name string, handler EventHandler)
	Subscriptions() map[EventType][]string
}

type namedHandler struct {
	name   string
	handle EventHandler
}

// inMemoryDispatcher runs handlers on the publisher's goroutine, in
// subscription order.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]namedHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]namedHandler),
	}
}

// Publish invokes every handler for event.Type. A failing handler does not
// stop the rest; failures come back joined, each tagged with the event type
// and ticket.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]namedHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %q (ticket %s): %w", event.Type, h.name, event.TicketID, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler under name for eventType.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, name string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], namedHandler{name: name, handle: handler})
}

// Subscriptions lists handler names per event type.
func (d *inMemoryDispatcher) Subscriptions() map[EventType][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[EventType][]string, len(d.listeners))
	for eventType, handlers := range d.listeners {
		for _, h := range handlers {
			out[eventType] = append(out[eventType], h.name)
		}
	}
	return out
}
