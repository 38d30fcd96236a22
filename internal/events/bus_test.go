package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()
	received := make(chan OutputStartEvent, 1)

	unsub := bus.Subscribe(func(e OutputStartEvent) {
		received <- e
	})
	defer unsub()

	ev := OutputStartEvent{
		OutputID: "id-1",
		Output:   "recorder",
		Code:     -2,
	}
	bus.Publish(ev)

	got := <-received
	if got.Output != ev.Output || got.Code != ev.Code {
		t.Errorf("Expected %+v, got %+v", ev, got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	defer bus.Close()
	received1 := make(chan OutputStopEvent, 1)
	received2 := make(chan OutputStopEvent, 1)

	unsub1 := bus.Subscribe(func(e OutputStopEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e OutputStopEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(OutputStopEvent{Output: "recorder"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()
	received := make(chan OutputStartEvent, 1)

	unsub := bus.Subscribe(func(e OutputStartEvent) {
		received <- e
	})

	bus.Publish(OutputStartEvent{Output: "a"})
	<-received

	unsub()

	bus.Publish(OutputStartEvent{Output: "b"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()
	defer bus.Close()

	startReceived := make(chan bool, 1)
	stopReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ OutputStartEvent) {
		startReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ OutputStopEvent) {
		stopReceived <- true
	})
	defer unsub2()

	bus.Publish(OutputStartEvent{Output: "x"})
	<-startReceived

	select {
	case <-stopReceived:
		t.Fatal("Stop subscriber should NOT have received OutputStartEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	defer bus.Close()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ OutputUpdatedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(OutputUpdatedEvent{
					Output:    "recorder",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_ClosedAndNil(t *testing.T) {
	bus := New()
	received := make(chan OutputStartEvent, 1)
	bus.Subscribe(func(e OutputStartEvent) { received <- e })

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}

	bus.Publish(OutputStartEvent{Output: "late"})
	select {
	case <-received:
		t.Fatal("closed bus delivered an event")
	case <-time.After(10 * time.Millisecond):
	}

	var nilBus *Bus
	nilBus.Publish(OutputStopEvent{})
	nilBus.Subscribe(func(OutputStopEvent) {})()
	_ = nilBus.Close()
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
	}{
		{"OutputStartEvent", OutputStartEvent{OutputID: "id", Output: "rec", Code: 0}},
		{"OutputStopEvent", OutputStopEvent{OutputID: "id", Output: "rec"}},
		{"OutputUpdatedEvent", OutputUpdatedEvent{Output: "rec", Settings: map[string]any{"bitrate": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if result["output"] != "rec" {
				t.Fatalf("missing output field: %v", result)
			}
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	defer bus.Close()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[OutputStartEvent](bus, ch)
	defer unsub()

	bus.Publish(OutputStartEvent{Output: "recorder", Code: 0})

	received := <-ch
	startEvent, ok := received.(OutputStartEvent)
	if !ok {
		t.Fatalf("Expected OutputStartEvent, got %T", received)
	}
	if startEvent.Output != "recorder" {
		t.Errorf("Expected output recorder, got %s", startEvent.Output)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	defer bus.Close()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[OutputCreatedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(OutputCreatedEvent{Output: "recorder"})
		done <- true
	}()

	<-done // Should complete without blocking
}

func TestSubscribeToChannel_LogEntry(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan any, 1)
	unsub := SubscribeToChannel[LogEntryEvent](bus, ch)
	defer unsub()

	bus.Publish(LogEntryEvent{Level: "warn", Module: "output", Message: "audio dropped"})

	select {
	case got := <-ch:
		e, ok := got.(LogEntryEvent)
		if !ok || e.Module != "output" || e.Level != "warn" {
			t.Errorf("unexpected event %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for log entry")
	}
}

func TestSubscribeOutputEvents(t *testing.T) {
	bus := New()
	defer bus.Close()
	ch := make(chan any, 8)

	unsub := SubscribeOutputEvents(bus, ch)
	bus.Publish(OutputCreatedEvent{Output: "recorder"})
	bus.Publish(OutputStartEvent{Output: "recorder"})
	bus.Publish(LogEntryEvent{Message: "not an output event"})
	bus.Publish(OutputStopEvent{Output: "recorder"})

	// Each type has its own subscriber, so arrival order is not fixed.
	seen := map[string]bool{}
	for range 3 {
		select {
		case got := <-ch:
			seen[fmt.Sprintf("%T", got)] = true
		case <-time.After(time.Second):
			t.Fatalf("timeout, got %v", seen)
		}
	}
	for _, want := range []string{"events.OutputCreatedEvent", "events.OutputStartEvent", "events.OutputStopEvent"} {
		if !seen[want] {
			t.Errorf("missing %s in %v", want, seen)
		}
	}

	unsub()
	bus.Publish(OutputDestroyedEvent{Output: "recorder"})
	select {
	case got := <-ch:
		t.Errorf("event after unsubscribe: %#v", got)
	case <-time.After(50 * time.Millisecond):
	}
}
