package output

import "strings"

// Flags declares what media an output type consumes and in which form.
type Flags uint32

// Capability flags.
const (
	FlagVideo Flags = 1 << iota
	FlagAudio
	FlagEncoded

	FlagAV = FlagVideo | FlagAudio
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FlagEncoded) {
		parts = append(parts, "encoded")
	} else {
		parts = append(parts, "raw")
	}
	if f.Has(FlagVideo) {
		parts = append(parts, "video")
	}
	if f.Has(FlagAudio) {
		parts = append(parts, "audio")
	}
	return strings.Join(parts, "|")
}

// ParseFlags parses a list such as ["encoded", "video", "audio"]. "av" is
// shorthand for video plus audio.
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "video":
			f |= FlagVideo
		case "audio":
			f |= FlagAudio
		case "av":
			f |= FlagAV
		case "encoded":
			f |= FlagEncoded
		case "raw", "":
		default:
			return 0, NewError(ErrCodeInvalidFlags, "unknown flag "+n, nil)
		}
	}
	return f, nil
}

// Start result codes carried by the start signal.
const (
	CodeSuccess       = 0
	CodeBadPath       = -1
	CodeConnectFailed = -2
	CodeInvalidStream = -3
	CodeError         = -4
	CodeDisconnected  = -5
)

// CodeText describes a start result code.
func CodeText(code int) string {
	switch code {
	case CodeSuccess:
		return "success"
	case CodeBadPath:
		return "bad path"
	case CodeConnectFailed:
		return "connect failed"
	case CodeInvalidStream:
		return "invalid stream"
	case CodeError:
		return "error"
	case CodeDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
