// Package signaling defines the duplex, event-addressed message bus the call
// and room sessions ride on. The transport itself is external; this package
// only fixes the event vocabulary and the Channel abstraction, plus a
// WebSocket-backed client and an in-process bus for tests.
package signaling

import "context"

// Handler processes one inbound event. Handlers run on the channel's dispatch
// goroutine; they must not block.
type Handler func(Event)

// Channel is the narrow surface sessions use to talk to the signaling server.
type Channel interface {
	// Send emits an event. Delivery order is preserved per sender.
	Send(ctx context.Context, e Event) error
	// Subscribe registers a handler for one event type and returns a cancel
	// function that removes it. Multiple handlers per type are allowed.
	Subscribe(t EventType, h Handler) (cancel func())
}

// HandlerTable tracks a session's subscriptions so they can be torn down as a
// unit when the session is destroyed. This keeps stale handlers from leaking
// across session instances.
type HandlerTable struct {
	cancels []func()
}

// Install subscribes h to t on ch and records the cancel.
func (ht *HandlerTable) Install(ch Channel, t EventType, h Handler) {
	ht.cancels = append(ht.cancels, ch.Subscribe(t, h))
}

// RemoveAll cancels every subscription made through this table.
func (ht *HandlerTable) RemoveAll() {
	for _, cancel := range ht.cancels {
		cancel()
	}
	ht.cancels = nil
}
