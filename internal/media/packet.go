package media

import "fmt"

// MicrosecondDen is the timebase denominator of microsecond timestamps.
const MicrosecondDen = 1_000_000

// EncoderType identifies the kind of media an encoder produces.
type EncoderType int

// Encoder types.
const (
	EncoderVideo EncoderType = iota + 1
	EncoderAudio
)

func (t EncoderType) String() string {
	switch t {
	case EncoderVideo:
		return "video"
	case EncoderAudio:
		return "audio"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseEncoderType converts "video" or "audio" to an EncoderType.
func ParseEncoderType(s string) (EncoderType, error) {
	switch s {
	case "video":
		return EncoderVideo, nil
	case "audio":
		return EncoderAudio, nil
	default:
		return 0, fmt.Errorf("unknown encoder type %q", s)
	}
}

// Packet is one compressed unit of audio or video.
// DTS and PTS are expressed in units of TimebaseNum/TimebaseDen seconds.
type Packet struct {
	Type        EncoderType
	DTS         int64
	PTS         int64
	TimebaseNum int32
	TimebaseDen int32
	Keyframe    bool
	Data        []byte
}

// DTSMicros converts the decode timestamp to microseconds.
// A zero timebase denominator is a producer bug and panics.
func (p *Packet) DTSMicros() int64 {
	if p.TimebaseDen == 0 {
		panic("media: packet with zero timebase denominator")
	}
	return p.DTS * MicrosecondDen / int64(p.TimebaseDen)
}

// Duplicate returns a copy of the packet that owns its own payload.
// The producer may reuse its buffer as soon as Duplicate returns.
func (p *Packet) Duplicate() *Packet {
	dup := *p
	if p.Data != nil {
		dup.Data = make([]byte, len(p.Data))
		copy(dup.Data, p.Data)
	}
	return &dup
}

// Free drops the payload owned by a duplicated packet.
func (p *Packet) Free() {
	p.Data = nil
}
