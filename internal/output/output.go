package output

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/mediaout/internal/encoder"
	"github.com/smazurov/mediaout/internal/events"
	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/pipeline"
	"github.com/smazurov/mediaout/internal/procs"
	"github.com/smazurov/mediaout/internal/properties"
	"github.com/smazurov/mediaout/internal/settings"
)

// Output is one output instance. All methods accept a nil receiver.
type Output struct {
	id      string
	name    string
	info    *TypeInfo
	manager *Manager
	logger  *slog.Logger
	metrics *outputMetrics

	sink        Sink
	encodedSink EncodedSink
	rawVideo    RawVideoSink
	rawAudio    RawAudioSink

	// mu guards settings, media, encoders and conversion hints.
	mu           sync.Mutex
	settings     *settings.Data
	video        *pipeline.Video
	audio        *pipeline.Audio
	videoEncoder *encoder.Encoder
	audioEncoder *encoder.Encoder
	videoConv    media.VideoScaleInfo
	videoConvSet bool
	audioConv    media.AudioConvertInfo
	audioConvSet bool

	// captureMu serializes BeginDataCapture and EndDataCapture.
	captureMu sync.Mutex
	valid     atomic.Bool
	active    atomic.Bool

	il     *interleaver
	direct *directReceiver
	raw    *rawReceiver

	signals *events.Bus
	procs   *procs.Handler

	destroyOnce sync.Once
}

// ID returns the instance ID.
func (o *Output) ID() string {
	if o == nil {
		return ""
	}
	return o.id
}

// Name returns the instance name.
func (o *Output) Name() string {
	if o == nil {
		return ""
	}
	return o.name
}

// TypeID returns the output type identifier.
func (o *Output) TypeID() string {
	if o == nil {
		return ""
	}
	return o.info.ID
}

// Flags returns the type's capability flags.
func (o *Output) Flags() Flags {
	if o == nil {
		return 0
	}
	return o.info.Flags
}

// Events returns the instance's signal bus carrying OutputStartEvent and
// OutputStopEvent.
func (o *Output) Events() *events.Bus {
	if o == nil {
		return nil
	}
	return o.signals
}

// Procs returns the instance's procedure handler.
func (o *Output) Procs() *procs.Handler {
	if o == nil {
		return nil
	}
	return o.procs
}

// Destroy stops, deregisters and tears down the output. It is safe on an
// output whose creation failed and runs at most once.
func (o *Output) Destroy() {
	if o == nil {
		return
	}
	o.destroyOnce.Do(o.destroy)
}

func (o *Output) destroy() {
	logger := o.logger
	if logger == nil {
		logger = logging.GetLogger("output")
	}

	if o.valid.Load() {
		if o.active.Load() {
			o.sink.Stop()
			// The sink may not have ended capture itself; unhook without signalling.
			o.captureMu.Lock()
			if o.active.Load() {
				o.unhook()
				o.active.Store(false)
				o.metrics.SetActive(false)
			}
			o.captureMu.Unlock()
		}
		o.manager.deregister(o)
		o.valid.Store(false)
		o.manager.publish(events.OutputDestroyedEvent{
			OutputID:  o.id,
			Output:    o.name,
			Timestamp: timestamp(),
		})
	}

	o.mu.Lock()
	venc, aenc := o.videoEncoder, o.audioEncoder
	o.videoEncoder, o.audioEncoder = nil, nil
	o.mu.Unlock()
	venc.RemoveOutput(o)
	aenc.RemoveOutput(o)

	if o.il != nil {
		o.il.clear()
	}
	if o.sink != nil {
		o.sink.Destroy()
	}
	if err := o.signals.Close(); err != nil {
		logger.Warn("Failed to close signal bus", "error", err)
	}
	o.procs.Close()

	o.mu.Lock()
	o.settings.Release()
	o.settings = nil
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.delete()
	}
	logger.Info("Output destroyed")
}

// Start asks the sink to start. Returns false for a nil or unconstructed output.
func (o *Output) Start() bool {
	if o == nil || o.sink == nil {
		return false
	}
	return o.sink.Start()
}

// Stop asks the sink to stop.
func (o *Output) Stop() {
	if o == nil || o.sink == nil {
		return
	}
	o.sink.Stop()
}

// IsActive reports whether data capture is running.
func (o *Output) IsActive() bool {
	if o == nil {
		return false
	}
	return o.active.Load()
}

// Update merges s into the current settings and hands the result to the sink
// when it implements Updater. Keys missing from s are kept. The previous
// snapshot is replaced, never mutated.
func (o *Output) Update(s *settings.Data) {
	if o == nil || s == nil {
		return
	}
	o.mu.Lock()
	if o.settings == nil {
		o.mu.Unlock()
		return
	}
	merged := o.settings.Clone()
	merged.Apply(s)
	old := o.settings
	o.settings = merged
	o.mu.Unlock()
	old.Release()

	if u, ok := o.sink.(Updater); ok {
		u.Update(merged)
	}
	o.manager.publish(events.OutputUpdatedEvent{
		OutputID:  o.id,
		Output:    o.name,
		Settings:  merged.Map(),
		Timestamp: timestamp(),
	})
	o.logger.Debug("Output settings updated")
}

// Settings returns a new reference to the current settings. The caller must
// Release it.
func (o *Output) Settings() *settings.Data {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings.AddRef()
}

// Properties returns the type's properties filled with the current settings.
func (o *Output) Properties(locale string) *properties.Properties {
	if o == nil || o.info.Properties == nil {
		return nil
	}
	props := o.info.Properties(locale)
	s := o.Settings()
	props.ApplySettings(s)
	s.Release()
	return props
}

// CanPause reports whether the sink supports pausing.
func (o *Output) CanPause() bool {
	if o == nil {
		return false
	}
	_, ok := o.sink.(Pauser)
	return ok
}

// Pause pauses the sink. Returns false when the sink cannot pause.
func (o *Output) Pause() bool {
	if o == nil {
		return false
	}
	p, ok := o.sink.(Pauser)
	if !ok {
		return false
	}
	p.Pause()
	return true
}

// SetMedia sets the raw pipelines the output connects to in raw mode.
func (o *Output) SetMedia(video *pipeline.Video, audio *pipeline.Audio) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.video, o.audio = video, audio
}

// Video returns the raw video pipeline.
func (o *Output) Video() *pipeline.Video {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.video
}

// Audio returns the raw audio pipeline.
func (o *Output) Audio() *pipeline.Audio {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.audio
}

// bindSinkInterfaces checks that the sink implements the delivery interface
// its type's flags demand.
func (o *Output) bindSinkInterfaces() error {
	flags := o.info.Flags
	if flags.Has(FlagEncoded) {
		es, ok := o.sink.(EncodedSink)
		if !ok {
			return NewError(ErrCodeConstructionFailure, "encoded type without EncodedPacket", nil)
		}
		o.encodedSink = es
		return nil
	}
	if flags.Has(FlagVideo) {
		vs, ok := o.sink.(RawVideoSink)
		if !ok {
			return NewError(ErrCodeConstructionFailure, "raw video type without RawVideo", nil)
		}
		o.rawVideo = vs
	}
	if flags.Has(FlagAudio) {
		as, ok := o.sink.(RawAudioSink)
		if !ok {
			return NewError(ErrCodeConstructionFailure, "raw audio type without RawAudio", nil)
		}
		o.rawAudio = as
	}
	return nil
}

// deliverPacket hands an encoded packet to the sink.
func (o *Output) deliverPacket(pkt *media.Packet) {
	o.encodedSink.EncodedPacket(pkt)
	o.metrics.IncrementPacketsSent(len(pkt.Data))
}

// directReceiver forwards a single encoded stream to the sink without
// interleaving.
type directReceiver struct {
	o *Output
}

func (r *directReceiver) ReceivePacket(pkt *media.Packet) {
	r.o.deliverPacket(pkt)
}

// rawReceiver forwards raw frames to the sink.
type rawReceiver struct {
	o *Output
}

func (r *rawReceiver) ReceiveVideo(frame *media.VideoFrame) {
	r.o.rawVideo.RawVideo(frame)
}

func (r *rawReceiver) ReceiveAudio(frame *media.AudioFrame) {
	r.o.rawAudio.RawAudio(frame)
}
