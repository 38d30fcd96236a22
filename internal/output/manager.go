// Package output implements the output-management core: output instances,
// their encoder and pipeline bindings, the data-capture state machine and the
// audio/video packet interleaver.
package output

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/mediaout/internal/events"
	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/pipeline"
	"github.com/smazurov/mediaout/internal/procs"
	"github.com/smazurov/mediaout/internal/properties"
	"github.com/smazurov/mediaout/internal/settings"
)

// Manager is the engine context that owns the output registry. Create one at
// engine start and call Shutdown at engine stop.
type Manager struct {
	types  *Types
	bus    *events.Bus
	logger *slog.Logger

	mediaMu sync.RWMutex
	video   *pipeline.Video
	audio   *pipeline.Audio

	mu      sync.RWMutex
	outputs []*Output
}

// NewManager creates a manager resolving types through types.
func NewManager(types *Types) *Manager {
	return &Manager{
		types:  types,
		bus:    events.New(),
		logger: logging.GetLogger("output"),
	}
}

// Types returns the type registry.
func (m *Manager) Types() *Types {
	return m.types
}

// Events returns the engine-wide bus. Start and stop signals of every output
// are published here as well as on the output's own bus.
func (m *Manager) Events() *events.Bus {
	if m == nil {
		return nil
	}
	return m.bus
}

// SetMedia swaps the process-wide pipelines. New outputs pick them up and
// existing outputs are switched over.
func (m *Manager) SetMedia(video *pipeline.Video, audio *pipeline.Audio) {
	m.mediaMu.Lock()
	m.video, m.audio = video, audio
	m.mediaMu.Unlock()

	for _, o := range m.Outputs() {
		o.SetMedia(video, audio)
	}
}

func (m *Manager) media() (*pipeline.Video, *pipeline.Audio) {
	m.mediaMu.RLock()
	defer m.mediaMu.RUnlock()
	return m.video, m.audio
}

// Create builds an output of type typeID. s may be nil; otherwise the output
// takes its own reference and the type's defaults are applied to it.
func (m *Manager) Create(typeID, name string, s *settings.Data) (*Output, error) {
	info, ok := m.types.Lookup(typeID)
	if !ok {
		m.logger.Error("Output type not found", "type", typeID, "output", name)
		return nil, NewError(ErrCodeTypeNotFound, typeID, nil)
	}

	id := uuid.NewString()
	o := &Output{
		id:      id,
		name:    name,
		info:    info,
		manager: m,
		logger:  logging.GetLogger("output").With("output", name, "type", typeID),
		signals: events.New(),
		procs:   procs.New(),
		metrics: newOutputMetrics(name, id),
	}
	o.il = newInterleaver(o.deliverPacket, o.metrics)
	o.direct = &directReceiver{o: o}
	o.raw = &rawReceiver{o: o}
	o.video, o.audio = m.media()

	if s != nil {
		o.settings = s.AddRef()
	} else {
		o.settings = settings.New()
	}
	if info.Defaults != nil {
		info.Defaults(o.settings)
	}

	sink, err := info.Create(o.settings, o)
	// A sink returned alongside an error is still torn down by Destroy.
	if sink != nil {
		o.sink = sink
	}
	if err == nil && sink == nil {
		err = errors.New("type returned no sink")
	}
	if err == nil {
		err = o.bindSinkInterfaces()
	}
	if err != nil {
		o.logger.Error("Failed to create output", "error", err)
		o.Destroy()
		return nil, NewError(ErrCodeConstructionFailure, name, err)
	}

	m.register(o)
	o.valid.Store(true)
	m.bus.Publish(events.OutputCreatedEvent{
		OutputID:   o.id,
		Output:     name,
		OutputType: typeID,
		Timestamp:  timestamp(),
	})
	o.logger.Info("Output created", "id", o.id)
	return o, nil
}

// Outputs returns a snapshot of the registered outputs in creation order.
func (m *Manager) Outputs() []*Output {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Output, len(m.outputs))
	copy(out, m.outputs)
	return out
}

// Find returns the first registered output whose name or ID matches key.
func (m *Manager) Find(key string) *Output {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.outputs {
		if o.name == key || o.id == key {
			return o
		}
	}
	return nil
}

// Defaults returns a snapshot holding typeID's defaults, or nil for an
// unknown type. The caller owns the returned reference.
func (m *Manager) Defaults(typeID string) *settings.Data {
	info, ok := m.types.Lookup(typeID)
	if !ok {
		return nil
	}
	s := settings.New()
	if info.Defaults != nil {
		info.Defaults(s)
	}
	return s
}

// TypeProperties returns typeID's properties filled with its defaults.
func (m *Manager) TypeProperties(typeID, locale string) *properties.Properties {
	info, ok := m.types.Lookup(typeID)
	if !ok || info.Properties == nil {
		return nil
	}
	props := info.Properties(locale)
	defaults := m.Defaults(typeID)
	props.ApplySettings(defaults)
	defaults.Release()
	return props
}

// Shutdown destroys every output and closes the engine bus.
func (m *Manager) Shutdown() {
	if m == nil {
		return
	}
	for _, o := range m.Outputs() {
		o.Destroy()
	}
	if err := m.bus.Close(); err != nil {
		m.logger.Warn("Failed to close event bus", "error", err)
	}
}

func (m *Manager) register(o *Output) {
	m.mu.Lock()
	m.outputs = append(m.outputs, o)
	m.mu.Unlock()
}

func (m *Manager) deregister(o *Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.outputs {
		if existing == o {
			m.outputs = append(m.outputs[:i], m.outputs[i+1:]...)
			return
		}
	}
}

func (m *Manager) publish(ev events.Event) {
	if m == nil {
		return
	}
	m.bus.Publish(ev)
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
