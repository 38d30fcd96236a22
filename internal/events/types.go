package events

// Event type constants for kelindar/event.
const (
	TypeOutputStart uint32 = iota + 1
	TypeOutputStop
	TypeOutputCreated
	TypeOutputDestroyed
	TypeOutputUpdated
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// OutputStartEvent is the "start(output, code)" signal. Code 0 means the
// output began capturing; negative codes report an asynchronous start failure.
type OutputStartEvent struct {
	OutputID  string `json:"output_id" example:"0b6c2c0e-7d1f-4a55-9f31-51b1b0a4f2a4" doc:"Output instance ID"`
	Output    string `json:"output" example:"recorder" doc:"Output name"`
	Code      int    `json:"code" example:"0" doc:"Start result code (0 = success)"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for OutputStartEvent.
func (e OutputStartEvent) Type() uint32 { return TypeOutputStart }

// OutputStopEvent is the "stop(output)" signal.
type OutputStopEvent struct {
	OutputID  string `json:"output_id" doc:"Output instance ID"`
	Output    string `json:"output" example:"recorder" doc:"Output name"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for OutputStopEvent.
func (e OutputStopEvent) Type() uint32 { return TypeOutputStop }

// OutputCreatedEvent is published on the engine bus when an output becomes valid.
type OutputCreatedEvent struct {
	OutputID   string `json:"output_id" doc:"Output instance ID"`
	Output     string `json:"output" example:"recorder" doc:"Output name"`
	OutputType string `json:"output_type" example:"null_output" doc:"Output type identifier"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for OutputCreatedEvent.
func (e OutputCreatedEvent) Type() uint32 { return TypeOutputCreated }

// OutputDestroyedEvent is published on the engine bus when an output is deregistered.
type OutputDestroyedEvent struct {
	OutputID  string `json:"output_id" doc:"Output instance ID"`
	Output    string `json:"output" example:"recorder" doc:"Output name"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for OutputDestroyedEvent.
func (e OutputDestroyedEvent) Type() uint32 { return TypeOutputDestroyed }

// OutputUpdatedEvent is published on the engine bus after an output's settings change.
type OutputUpdatedEvent struct {
	OutputID  string         `json:"output_id" doc:"Output instance ID"`
	Output    string         `json:"output" example:"recorder" doc:"Output name"`
	Settings  map[string]any `json:"settings" doc:"Effective settings after the update"`
	Timestamp string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for OutputUpdatedEvent.
func (e OutputUpdatedEvent) Type() uint32 { return TypeOutputUpdated }

// LogEntryEvent carries one log line to streaming clients.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"1042" doc:"Buffer sequence number"`
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00.123456789Z" doc:"Entry timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"output" doc:"Emitting module"`
	Message    string         `json:"message" example:"Output created" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
