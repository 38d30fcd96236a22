package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch for select-loop
// consumers such as SSE and WebSocket handlers. A full channel drops the event
// rather than stalling the publisher, which may be a packet path.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	if bus == nil || bus.closed.Load() {
		return func() {}
	}
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeOutputEvents forwards every output lifecycle event (start, stop,
// created, destroyed, updated) into ch. The returned func removes all of them.
func SubscribeOutputEvents(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[OutputStartEvent](bus, ch),
		SubscribeToChannel[OutputStopEvent](bus, ch),
		SubscribeToChannel[OutputCreatedEvent](bus, ch),
		SubscribeToChannel[OutputDestroyedEvent](bus, ch),
		SubscribeToChannel[OutputUpdatedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
