package output

import (
	"github.com/smazurov/mediaout/internal/encoder"
	"github.com/smazurov/mediaout/internal/media"
)

// SetVideoEncoder binds enc to the video slot. A nil enc unbinds. An encoder
// of the wrong media type is ignored.
func (o *Output) SetVideoEncoder(enc *encoder.Encoder) {
	o.setEncoder(media.EncoderVideo, enc)
}

// SetAudioEncoder binds enc to the audio slot. A nil enc unbinds. An encoder
// of the wrong media type is ignored.
func (o *Output) SetAudioEncoder(enc *encoder.Encoder) {
	o.setEncoder(media.EncoderAudio, enc)
}

func (o *Output) setEncoder(typ media.EncoderType, enc *encoder.Encoder) {
	if o == nil {
		return
	}
	if enc != nil && enc.Type() != typ {
		o.logger.Debug("Ignoring encoder of wrong type", "encoder", enc.Name(), "want", typ, "got", enc.Type())
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	slot := &o.videoEncoder
	if typ == media.EncoderAudio {
		slot = &o.audioEncoder
	}
	old := *slot
	if old == enc {
		return
	}
	if old != nil {
		old.RemoveOutput(o)
	}
	if enc != nil {
		enc.AddOutput(o)
	}
	*slot = enc
	o.logger.Debug("Encoder bound", "media", typ, "encoder", enc.Name())
}

// VideoEncoder returns the bound video encoder.
func (o *Output) VideoEncoder() *encoder.Encoder {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.videoEncoder
}

// AudioEncoder returns the bound audio encoder.
func (o *Output) AudioEncoder() *encoder.Encoder {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.audioEncoder
}

// RemoveEncoder clears whichever slot holds enc. Encoders call it when they
// are destroyed.
func (o *Output) RemoveEncoder(enc *encoder.Encoder) {
	if o == nil || enc == nil {
		return
	}
	o.mu.Lock()
	if o.videoEncoder == enc {
		o.videoEncoder = nil
	}
	if o.audioEncoder == enc {
		o.audioEncoder = nil
	}
	o.mu.Unlock()
	enc.RemoveOutput(o)
}

// SetVideoConversion sets the raw video conversion hint. nil clears it.
func (o *Output) SetVideoConversion(conv *media.VideoScaleInfo) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if conv == nil {
		o.videoConv, o.videoConvSet = media.VideoScaleInfo{}, false
		return
	}
	o.videoConv, o.videoConvSet = *conv, true
}

// SetAudioConversion sets the raw audio conversion hint. nil clears it.
func (o *Output) SetAudioConversion(conv *media.AudioConvertInfo) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if conv == nil {
		o.audioConv, o.audioConvSet = media.AudioConvertInfo{}, false
		return
	}
	o.audioConv, o.audioConvSet = *conv, true
}

// VideoConversion returns the video hint and whether one is set.
func (o *Output) VideoConversion() (media.VideoScaleInfo, bool) {
	if o == nil {
		return media.VideoScaleInfo{}, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.videoConv, o.videoConvSet
}

// AudioConversion returns the audio hint and whether one is set.
func (o *Output) AudioConversion() (media.AudioConvertInfo, bool) {
	if o == nil {
		return media.AudioConvertInfo{}, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.audioConv, o.audioConvSet
}
