// Package pipeline implements the raw media pipelines that deliver
// uncompressed frames to outputs running in raw mode.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/media"
)

// Errors returned by Connect.
var (
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	ErrAlreadyConnected      = errors.New("receiver already connected")
)

// VideoReceiver consumes raw video frames. Implementations must be comparable.
type VideoReceiver interface {
	ReceiveVideo(frame *media.VideoFrame)
}

// AudioReceiver consumes raw audio frames. Implementations must be comparable.
type AudioReceiver interface {
	ReceiveAudio(frame *media.AudioFrame)
}

// VideoConverter turns a frame into the layout a hint asks for.
type VideoConverter func(frame *media.VideoFrame, to media.VideoScaleInfo) *media.VideoFrame

// AudioConverter turns a frame into the layout a hint asks for.
type AudioConverter func(frame *media.AudioFrame, to media.AudioConvertInfo) *media.AudioFrame

type videoConn struct {
	receiver VideoReceiver
	hint     *media.VideoScaleInfo
}

// Video is a raw video pipeline.
type Video struct {
	info      media.VideoInfo
	converter VideoConverter
	logger    *slog.Logger

	mu    sync.RWMutex
	conns []videoConn
}

// NewVideo creates a video pipeline producing frames described by info.
func NewVideo(info media.VideoInfo) *Video {
	return &Video{
		info:   info,
		logger: logging.GetLogger("pipeline").With("pipeline", "video"),
	}
}

// Info returns the pipeline's native format.
func (v *Video) Info() media.VideoInfo {
	return v.info
}

// SetConverter installs a converter used for hints that differ from the
// native format. Existing connections are unaffected.
func (v *Video) SetConverter(c VideoConverter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.converter = c
}

// Connect starts delivering frames to r, converted per hint when hint is not nil.
func (v *Video) Connect(hint *media.VideoScaleInfo, r VideoReceiver) error {
	if v == nil || r == nil {
		return errors.New("nil pipeline or receiver")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, c := range v.conns {
		if c.receiver == r {
			return ErrAlreadyConnected
		}
	}

	if hint != nil && !v.nativeLocked(*hint) && v.converter == nil {
		return fmt.Errorf("%w: %s %dx%d from %s %dx%d", ErrUnsupportedConversion,
			hint.Format, hint.Width, hint.Height, v.info.Format, v.info.Width, v.info.Height)
	}

	var h *media.VideoScaleInfo
	if hint != nil {
		cp := *hint
		h = &cp
	}
	v.conns = append(v.conns, videoConn{receiver: r, hint: h})
	v.logger.Debug("Receiver connected", "connections", len(v.conns))
	return nil
}

// Disconnect stops delivery to r. Unknown receivers are ignored.
func (v *Video) Disconnect(r VideoReceiver) {
	if v == nil || r == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, c := range v.conns {
		if c.receiver == r {
			v.conns = append(v.conns[:i], v.conns[i+1:]...)
			v.logger.Debug("Receiver disconnected", "connections", len(v.conns))
			return
		}
	}
}

// Connected reports whether r is connected.
func (v *Video) Connected(r VideoReceiver) bool {
	if v == nil {
		return false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, c := range v.conns {
		if c.receiver == r {
			return true
		}
	}
	return false
}

// Push delivers frame to every connection.
func (v *Video) Push(frame *media.VideoFrame) {
	if v == nil || frame == nil {
		return
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, c := range v.conns {
		out := frame
		if c.hint != nil && !v.nativeLocked(*c.hint) && v.converter != nil {
			out = v.converter(frame, *c.hint)
		}
		c.receiver.ReceiveVideo(out)
	}
}

func (v *Video) nativeLocked(h media.VideoScaleInfo) bool {
	return (h.Format == media.PixelNone || h.Format == v.info.Format) &&
		(h.Width == 0 || h.Width == v.info.Width) &&
		(h.Height == 0 || h.Height == v.info.Height)
}

type audioConn struct {
	receiver AudioReceiver
	hint     *media.AudioConvertInfo
}

// Audio is a raw audio pipeline.
type Audio struct {
	info      media.AudioInfo
	converter AudioConverter
	logger    *slog.Logger

	mu    sync.RWMutex
	conns []audioConn
}

// NewAudio creates an audio pipeline producing frames described by info.
func NewAudio(info media.AudioInfo) *Audio {
	return &Audio{
		info:   info,
		logger: logging.GetLogger("pipeline").With("pipeline", "audio"),
	}
}

// Info returns the pipeline's native format.
func (a *Audio) Info() media.AudioInfo {
	return a.info
}

// SetConverter installs a converter used for hints that differ from the
// native format.
func (a *Audio) SetConverter(c AudioConverter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.converter = c
}

// Connect starts delivering frames to r, converted per hint when hint is not nil.
func (a *Audio) Connect(hint *media.AudioConvertInfo, r AudioReceiver) error {
	if a == nil || r == nil {
		return errors.New("nil pipeline or receiver")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.conns {
		if c.receiver == r {
			return ErrAlreadyConnected
		}
	}

	if hint != nil && !a.nativeLocked(*hint) && a.converter == nil {
		return fmt.Errorf("%w: %s %dHz/%dch from %s %dHz/%dch", ErrUnsupportedConversion,
			hint.Format, hint.SampleRate, hint.Speakers, a.info.Format, a.info.SampleRate, a.info.Speakers)
	}

	var h *media.AudioConvertInfo
	if hint != nil {
		cp := *hint
		h = &cp
	}
	a.conns = append(a.conns, audioConn{receiver: r, hint: h})
	a.logger.Debug("Receiver connected", "connections", len(a.conns))
	return nil
}

// Disconnect stops delivery to r. Unknown receivers are ignored.
func (a *Audio) Disconnect(r AudioReceiver) {
	if a == nil || r == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, c := range a.conns {
		if c.receiver == r {
			a.conns = append(a.conns[:i], a.conns[i+1:]...)
			a.logger.Debug("Receiver disconnected", "connections", len(a.conns))
			return
		}
	}
}

// Connected reports whether r is connected.
func (a *Audio) Connected(r AudioReceiver) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.conns {
		if c.receiver == r {
			return true
		}
	}
	return false
}

// Push delivers frame to every connection.
func (a *Audio) Push(frame *media.AudioFrame) {
	if a == nil || frame == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.conns {
		out := frame
		if c.hint != nil && !a.nativeLocked(*c.hint) && a.converter != nil {
			out = a.converter(frame, *c.hint)
		}
		c.receiver.ReceiveAudio(out)
	}
}

func (a *Audio) nativeLocked(h media.AudioConvertInfo) bool {
	return (h.Format == media.SampleNone || h.Format == a.info.Format) &&
		(h.SampleRate == 0 || h.SampleRate == a.info.SampleRate) &&
		(h.Speakers == 0 || h.Speakers == a.info.Speakers)
}
