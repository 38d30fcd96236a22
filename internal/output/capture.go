package output

import (
	"github.com/smazurov/mediaout/internal/encoder"
	"github.com/smazurov/mediaout/internal/events"
	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/pipeline"
)

// producers is a consistent view of what an output is bound to.
type producers struct {
	video        *pipeline.Video
	audio        *pipeline.Audio
	videoEncoder *encoder.Encoder
	audioEncoder *encoder.Encoder
	videoConv    *media.VideoScaleInfo
	audioConv    *media.AudioConvertInfo
}

func (o *Output) producers() producers {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := producers{
		video:        o.video,
		audio:        o.audio,
		videoEncoder: o.videoEncoder,
		audioEncoder: o.audioEncoder,
	}
	if o.videoConvSet {
		conv := o.videoConv
		p.videoConv = &conv
	}
	if o.audioConvSet {
		conv := o.audioConv
		p.audioConv = &conv
	}
	return p
}

// effectiveFlags resolves requested flags against the type: zero means the
// type's full set, anything else is intersected with it. Whether media is
// encoded is always the type's choice.
func (o *Output) effectiveFlags(flags Flags) (encoded, hasVideo, hasAudio bool) {
	full := o.info.Flags
	if flags == 0 {
		flags = full
	} else {
		flags &= full
	}
	return full.Has(FlagEncoded), flags.Has(FlagVideo), flags.Has(FlagAudio)
}

func (o *Output) canBegin(flags Flags, p producers) bool {
	if o.active.Load() {
		return false
	}
	encoded, hasVideo, hasAudio := o.effectiveFlags(flags)

	if hasVideo {
		if encoded && p.videoEncoder == nil {
			return false
		}
		if !encoded && p.video == nil {
			return false
		}
	}
	if hasAudio {
		if encoded && p.audioEncoder == nil {
			return false
		}
		if !encoded && p.audio == nil {
			return false
		}
	}
	return true
}

// CanBeginDataCapture reports whether BeginDataCapture(flags) would succeed.
// It has no side effects.
func (o *Output) CanBeginDataCapture(flags Flags) bool {
	if o == nil {
		return false
	}
	return o.canBegin(flags, o.producers())
}

// BeginDataCapture hooks the output to its producers and marks it active. It
// returns false, changing nothing, when the output is already active or a
// required encoder or pipeline is missing.
func (o *Output) BeginDataCapture(flags Flags) bool {
	if o == nil {
		return false
	}
	o.captureMu.Lock()
	defer o.captureMu.Unlock()

	p := o.producers()
	// Capture cannot begin before construction completes.
	if !o.valid.Load() || !o.canBegin(flags, p) {
		o.logger.Debug("Cannot begin data capture", "flags", flags)
		return false
	}

	encoded, hasVideo, hasAudio := o.effectiveFlags(flags)
	o.il.reset()

	if encoded {
		switch {
		case hasVideo && hasAudio:
			p.videoEncoder.Start(o.il)
			p.audioEncoder.Start(o.il)
		case hasVideo:
			p.videoEncoder.Start(o.direct)
		case hasAudio:
			p.audioEncoder.Start(o.direct)
		}
	} else {
		if hasVideo {
			if err := p.video.Connect(p.videoConv, o.raw); err != nil {
				o.logger.Warn("Failed to connect video pipeline", "error", err)
			}
		}
		if hasAudio {
			if err := p.audio.Connect(p.audioConv, o.raw); err != nil {
				o.logger.Warn("Failed to connect audio pipeline", "error", err)
			}
		}
	}

	o.active.Store(true)
	o.metrics.SetActive(true)
	o.logger.Info("Data capture started", "encoded", encoded, "video", hasVideo, "audio", hasAudio)
	o.signalStart(CodeSuccess)
	return true
}

// EndDataCapture unhooks the output and marks it inactive. Producers are
// unhooked according to the type's full flag set, whatever flags capture
// began with; unhooking something never hooked is a no-op. The interleave
// buffer is empty when this returns.
func (o *Output) EndDataCapture() {
	if o == nil {
		return
	}
	o.captureMu.Lock()
	defer o.captureMu.Unlock()

	if !o.active.Load() {
		return
	}
	o.unhook()
	o.active.Store(false)
	o.metrics.SetActive(false)
	o.logger.Info("Data capture stopped")

	ev := events.OutputStopEvent{OutputID: o.id, Output: o.name, Timestamp: timestamp()}
	o.signals.Publish(ev)
	o.manager.publish(ev)
}

// unhook stops encoders or disconnects pipelines, then frees buffered
// packets. Caller holds captureMu.
func (o *Output) unhook() {
	p := o.producers()
	encoded, hasVideo, hasAudio := o.effectiveFlags(0)

	if encoded {
		switch {
		case hasVideo && hasAudio:
			p.videoEncoder.Stop(o.il)
			p.audioEncoder.Stop(o.il)
		case hasVideo:
			p.videoEncoder.Stop(o.direct)
		case hasAudio:
			p.audioEncoder.Stop(o.direct)
		}
	} else {
		if hasVideo {
			p.video.Disconnect(o.raw)
		}
		if hasAudio {
			p.audio.Disconnect(o.raw)
		}
	}
	o.il.clear()
}

// SignalStartFailure reports an asynchronous start failure with code. The
// capture state is not changed.
func (o *Output) SignalStartFailure(code int) {
	if o == nil {
		return
	}
	o.logger.Warn("Output failed to start", "code", code, "reason", CodeText(code))
	o.signalStart(code)
}

func (o *Output) signalStart(code int) {
	o.metrics.IncrementStartSignals(code)
	ev := events.OutputStartEvent{OutputID: o.id, Output: o.name, Code: code, Timestamp: timestamp()}
	o.signals.Publish(ev)
	o.manager.publish(ev)
}
