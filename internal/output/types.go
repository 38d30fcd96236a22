package output

import (
	"sort"
	"sync"

	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/properties"
	"github.com/smazurov/mediaout/internal/settings"
)

// Sink is the per-instance behavior of an output type.
type Sink interface {
	// Start begins output. Sinks typically call BeginDataCapture from here.
	Start() bool
	// Stop ends output. Sinks typically call EndDataCapture from here.
	Stop()
	// Destroy releases the sink's resources. Called exactly once.
	Destroy()
}

// EncodedSink receives encoded packets. Required when FlagEncoded is set.
// The packet is only valid for the duration of the call.
type EncodedSink interface {
	EncodedPacket(pkt *media.Packet)
}

// RawVideoSink receives raw video. Required for raw types with FlagVideo.
type RawVideoSink interface {
	RawVideo(frame *media.VideoFrame)
}

// RawAudioSink receives raw audio. Required for raw types with FlagAudio.
type RawAudioSink interface {
	RawAudio(frame *media.AudioFrame)
}

// Updater is implemented by sinks that accept live settings changes.
type Updater interface {
	Update(s *settings.Data)
}

// Pauser is implemented by sinks that can pause.
type Pauser interface {
	Pause()
}

// CreateFunc constructs a sink. Returning a nil sink fails creation.
type CreateFunc func(s *settings.Data, o *Output) (Sink, error)

// TypeInfo describes an output type.
type TypeInfo struct {
	ID         string
	Flags      Flags
	Create     CreateFunc
	Defaults   func(s *settings.Data)
	Properties func(locale string) *properties.Properties
}

// Types maps type identifiers to their descriptors.
type Types struct {
	mu    sync.RWMutex
	types map[string]*TypeInfo
}

// NewTypes creates an empty registry.
func NewTypes() *Types {
	return &Types{types: make(map[string]*TypeInfo)}
}

// Register adds an output type.
func (t *Types) Register(info TypeInfo) error {
	if info.ID == "" || info.Create == nil {
		return NewError(ErrCodeInvalidType, "type needs an ID and a Create function", nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.types[info.ID]; exists {
		return NewError(ErrCodeTypeExists, info.ID, nil)
	}
	t.types[info.ID] = &info
	return nil
}

// Lookup resolves a type identifier.
func (t *Types) Lookup(id string) (*TypeInfo, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.types[id]
	return info, ok
}

// IDs returns the registered identifiers, sorted.
func (t *Types) IDs() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.types))
	for id := range t.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
