package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Every output owns one Bus for its start/stop signals; the engine owns
// another that aggregates all outputs.
type Bus struct {
	dispatcher *event.Dispatcher
	closed     atomic.Bool
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. Publishing on a closed or
// nil bus is a no-op.
// Usage: bus.Publish(OutputStartEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil || b.closed.Load() {
		return
	}

	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case OutputStartEvent:
		event.Publish(b.dispatcher, e)
	case OutputStopEvent:
		event.Publish(b.dispatcher, e)
	case OutputCreatedEvent:
		event.Publish(b.dispatcher, e)
	case OutputDestroyedEvent:
		event.Publish(b.dispatcher, e)
	case OutputUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e OutputStartEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	if b == nil || b.closed.Load() {
		return func() {}
	}

	switch h := handler.(type) {
	case func(OutputStartEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OutputStopEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OutputCreatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OutputDestroyedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OutputUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}

// Close shuts the dispatcher down. Subsequent publishes are dropped.
func (b *Bus) Close() error {
	if b == nil || !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.dispatcher.Close()
}
