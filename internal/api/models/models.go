package models

import "github.com/smazurov/mediaout/internal/properties"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Outputs int    `json:"outputs" example:"2" doc:"Number of registered outputs"`
	Active  int    `json:"active" example:"1" doc:"Number of capturing outputs"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Output type models
type TypeData struct {
	ID         string                `json:"id" example:"null_output" doc:"Output type identifier"`
	Flags      string                `json:"flags" example:"encoded|video|audio" doc:"Media the type consumes"`
	Properties []properties.Property `json:"properties" doc:"Configurable properties with default values"`
}

type TypeListData struct {
	Types []TypeData `json:"types" doc:"Registered output types"`
	Count int        `json:"count" example:"2" doc:"Number of types"`
}

type TypeListResponse struct {
	Body TypeListData
}

// Encoder models
type EncoderData struct {
	Name    string `json:"name" example:"h264" doc:"Encoder name"`
	Type    string `json:"type" example:"video" enum:"video,audio" doc:"Media type produced"`
	Active  bool   `json:"active" example:"true" doc:"Whether any receiver is started"`
	Outputs int    `json:"outputs" example:"1" doc:"Number of bound outputs"`
}

type EncoderListData struct {
	Encoders []EncoderData `json:"encoders" doc:"Configured encoders"`
	Count    int           `json:"count" example:"2" doc:"Number of encoders"`
}

type EncoderListResponse struct {
	Body EncoderListData
}

// Output models
type OutputData struct {
	ID           string   `json:"id" example:"0b6c2c0e-7d1f-4a55-9f31-51b1b0a4f2a4" doc:"Output instance ID"`
	Name         string   `json:"name" example:"recorder" doc:"Output name"`
	Type         string   `json:"type" example:"null_output" doc:"Output type identifier"`
	Flags        string   `json:"flags" example:"encoded|video|audio" doc:"Media the type consumes"`
	Active       bool     `json:"active" example:"true" doc:"Whether data capture is active"`
	CanPause     bool     `json:"can_pause" example:"true" doc:"Whether the sink supports pausing"`
	VideoEncoder string   `json:"video_encoder,omitempty" example:"h264" doc:"Bound video encoder"`
	AudioEncoder string   `json:"audio_encoder,omitempty" example:"aac" doc:"Bound audio encoder"`
	Procs        []string `json:"procs" doc:"Procedures callable on this output"`
	NextStart    string   `json:"next_start,omitempty" example:"2025-01-28T09:00:00Z" doc:"Next scheduled start"`
	NextStop     string   `json:"next_stop,omitempty" example:"2025-01-28T17:00:00Z" doc:"Next scheduled stop"`
}

type OutputListData struct {
	Outputs []OutputData `json:"outputs" doc:"Registered outputs"`
	Count   int          `json:"count" example:"2" doc:"Number of outputs"`
}

type OutputListResponse struct {
	Body OutputListData
}

type OutputResponse struct {
	Body OutputData
}

// OutputPath selects an output by name or ID.
type OutputPath struct {
	Name string `path:"name" example:"recorder" doc:"Output name or ID"`
}

// Output action models
type OutputActionData struct {
	Output string `json:"output" example:"recorder" doc:"Output name"`
	Active bool   `json:"active" example:"true" doc:"Whether data capture is active after the action"`
}

type OutputActionResponse struct {
	Body OutputActionData
}

// Settings models
type SettingsData struct {
	Output   string         `json:"output" example:"recorder" doc:"Output name"`
	Settings map[string]any `json:"settings" doc:"Effective settings"`
}

type SettingsResponse struct {
	Body SettingsData
}

type SettingsUpdateRequest struct {
	Name string `path:"name" example:"recorder" doc:"Output name or ID"`
	Body map[string]any
}

// Properties models
type PropertiesRequest struct {
	Name   string `path:"name" example:"recorder" doc:"Output name or ID"`
	Locale string `query:"locale" default:"en-US" example:"en-US" doc:"Locale for descriptions"`
}

type PropertiesData struct {
	Output     string                `json:"output" example:"recorder" doc:"Output name"`
	Locale     string                `json:"locale" example:"en-US" doc:"Locale of descriptions"`
	Properties []properties.Property `json:"properties" doc:"Properties filled with current settings"`
}

type PropertiesResponse struct {
	Body PropertiesData
}

// Procedure models
type ProcRequest struct {
	Name string         `path:"name" example:"recorder" doc:"Output name or ID"`
	Proc string         `path:"proc" example:"stats" doc:"Procedure name"`
	Body map[string]any `required:"false"`
}

type ProcData struct {
	Output string         `json:"output" example:"recorder" doc:"Output name"`
	Proc   string         `json:"proc" example:"stats" doc:"Procedure name"`
	Result map[string]any `json:"result" doc:"Procedure result"`
}

type ProcResponse struct {
	Body ProcData
}

// Log models
type LogsRequest struct {
	Tail   int    `query:"tail" default:"100" minimum:"0" example:"100" doc:"Most recent entries to return (0 for all)"`
	Module string `query:"module" example:"output" doc:"Only entries from this module"`
	After  uint64 `query:"after" example:"1000" doc:"Only entries with a larger sequence number"`
}

// LogStreamRequest resumes a log stream after the last entry a client saw.
type LogStreamRequest struct {
	LastEventID uint64 `header:"Last-Event-ID" doc:"Resume after this sequence number"`
}

type LogEntryData struct {
	Seq        uint64         `json:"seq" example:"1042" doc:"Buffer sequence number"`
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Entry timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"output" doc:"Emitting module"`
	Message    string         `json:"message" example:"Output created" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsData struct {
	Entries []LogEntryData `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int            `json:"count" example:"100" doc:"Number of entries"`
}

type LogsResponse struct {
	Body LogsData
}

// ConnectedEvent is the first message on every event stream.
type ConnectedEvent struct {
	Message   string `json:"message" example:"SSE connection established" doc:"Connection message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}
