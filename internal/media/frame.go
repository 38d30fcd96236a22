package media

// PixelFormat names a raw video layout.
type PixelFormat string

// Pixel formats.
const (
	PixelNone    PixelFormat = ""
	PixelI420    PixelFormat = "i420"
	PixelNV12    PixelFormat = "nv12"
	PixelYUY2    PixelFormat = "yuy2"
	PixelRGBA    PixelFormat = "rgba"
	PixelBGRA    PixelFormat = "bgra"
	PixelI444    PixelFormat = "i444"
	PixelUnknown PixelFormat = "unknown"
)

// SampleFormat names a raw audio sample layout.
type SampleFormat string

// Sample formats.
const (
	SampleNone   SampleFormat = ""
	SampleU8     SampleFormat = "u8"
	SampleS16    SampleFormat = "s16"
	SampleS32    SampleFormat = "s32"
	SampleFloat  SampleFormat = "f32"
	SampleFloatP SampleFormat = "f32p"
)

// VideoInfo describes what a raw video pipeline produces.
type VideoInfo struct {
	Name   string      `toml:"name" yaml:"name"`
	Format PixelFormat `toml:"format" yaml:"format"`
	Width  int         `toml:"width" yaml:"width"`
	Height int         `toml:"height" yaml:"height"`
	FPSNum int         `toml:"fps_num" yaml:"fps_num"`
	FPSDen int         `toml:"fps_den" yaml:"fps_den"`
}

// AudioInfo describes what a raw audio pipeline produces.
type AudioInfo struct {
	Name       string       `toml:"name" yaml:"name"`
	Format     SampleFormat `toml:"format" yaml:"format"`
	SampleRate int          `toml:"sample_rate" yaml:"sample_rate"`
	Speakers   int          `toml:"speakers" yaml:"speakers"`
}

// VideoScaleInfo is a conversion hint for raw video delivered to an output.
// Zero fields mean "keep the pipeline's value".
type VideoScaleInfo struct {
	Format PixelFormat
	Width  int
	Height int
}

// AudioConvertInfo is a conversion hint for raw audio delivered to an output.
// Zero fields mean "keep the pipeline's value".
type AudioConvertInfo struct {
	Format     SampleFormat
	SampleRate int
	Speakers   int
}

// VideoFrame is one uncompressed picture.
type VideoFrame struct {
	Data      [][]byte
	Linesize  []int
	Format    PixelFormat
	Width     int
	Height    int
	Timestamp uint64 // nanoseconds
}

// AudioFrame is a block of uncompressed samples, one slice per plane.
type AudioFrame struct {
	Data       [][]byte
	Frames     uint32
	Format     SampleFormat
	SampleRate int
	Speakers   int
	Timestamp  uint64 // nanoseconds
}
