package encoder

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/smazurov/mediaout/internal/media"
)

// Synthetic defaults.
const (
	DefaultVideoRate   = 30
	DefaultAudioRate   = 50 // 20ms frames
	DefaultSampleRate  = 48000
	DefaultToneHz      = 440.0
	defaultGOPSize     = 30
	defaultVideoBytes  = 256
	audioFrameChannels = 2
)

// SyntheticConfig configures a Synthetic generator.
type SyntheticConfig struct {
	// Rate is the number of packets per second.
	Rate int `toml:"rate" yaml:"rate,omitempty"`
	// TimebaseDen is the timestamp unit; defaults to 90000 for video and the
	// sample rate for audio.
	TimebaseDen int32 `toml:"timebase_den" yaml:"timebase_den,omitempty"`
	// StartDTS is the decode timestamp of the first packet.
	StartDTS int64 `toml:"start_dts" yaml:"start_dts,omitempty"`
}

// Synthetic produces a deterministic packet stream on an Encoder. Video
// packets carry a filler payload with a keyframe every GOP; audio packets carry
// a stereo s16 test tone.
type Synthetic struct {
	enc *Encoder
	cfg SyntheticConfig

	mu          sync.Mutex
	seq         int64
	sampleIndex uint64
}

// NewSynthetic attaches a generator to enc. Zero config fields take defaults.
func NewSynthetic(enc *Encoder, cfg SyntheticConfig) *Synthetic {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultVideoRate
		if enc.Type() == media.EncoderAudio {
			cfg.Rate = DefaultAudioRate
		}
	}
	if cfg.TimebaseDen <= 0 {
		cfg.TimebaseDen = 90000
		if enc.Type() == media.EncoderAudio {
			cfg.TimebaseDen = DefaultSampleRate
		}
	}
	return &Synthetic{enc: enc, cfg: cfg}
}

// Encoder returns the encoder packets are sent on.
func (s *Synthetic) Encoder() *Encoder {
	return s.enc
}

// Interval returns the wall-clock spacing between packets.
func (s *Synthetic) Interval() time.Duration {
	return time.Second / time.Duration(s.cfg.Rate)
}

// Next builds the next packet without sending it.
func (s *Synthetic) Next() *media.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := int64(s.cfg.TimebaseDen) / int64(s.cfg.Rate)
	dts := s.cfg.StartDTS + s.seq*step
	pkt := &media.Packet{
		Type:        s.enc.Type(),
		DTS:         dts,
		PTS:         dts,
		TimebaseNum: 1,
		TimebaseDen: s.cfg.TimebaseDen,
	}

	if s.enc.Type() == media.EncoderAudio {
		pkt.Keyframe = true
		pkt.Data = s.toneLocked(DefaultSampleRate / s.cfg.Rate)
	} else {
		pkt.Keyframe = s.seq%defaultGOPSize == 0
		pkt.Data = make([]byte, defaultVideoBytes)
		binary.BigEndian.PutUint64(pkt.Data, uint64(s.seq))
	}
	s.seq++
	return pkt
}

// Step sends one packet on the encoder.
func (s *Synthetic) Step() {
	s.enc.Send(s.Next())
}

// Run sends packets at the configured rate until ctx is done.
func (s *Synthetic) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// toneLocked renders n stereo s16 samples of a sine tone.
func (s *Synthetic) toneLocked(n int) []byte {
	buf := make([]byte, n*audioFrameChannels*2)
	for i := 0; i < n; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(DefaultSampleRate)
		v := int16(math.Sin(2*math.Pi*DefaultToneHz*t) * 32767.0 * 0.5)
		for ch := 0; ch < audioFrameChannels; ch++ {
			binary.LittleEndian.PutUint16(buf[(i*audioFrameChannels+ch)*2:], uint16(v))
		}
	}
	s.sampleIndex += uint64(n)
	return buf
}
