package output

import (
	"sync"
	"testing"
	"time"

	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/properties"
	"github.com/smazurov/mediaout/internal/settings"
)

// recordedPacket is a copy of a delivered packet; the original is freed after
// delivery.
type recordedPacket struct {
	Type media.EncoderType
	DTS  int64
	PTS  int64
	Den  int32
	Data []byte
}

func record(pkt *media.Packet) recordedPacket {
	return recordedPacket{
		Type: pkt.Type,
		DTS:  pkt.DTS,
		PTS:  pkt.PTS,
		Den:  pkt.TimebaseDen,
		Data: append([]byte(nil), pkt.Data...),
	}
}

// fakeSink is an encoded and raw sink that begins capture in Start and ends it
// in Stop.
type fakeSink struct {
	out *Output

	mu        sync.Mutex
	packets   []recordedPacket
	videos    int
	audios    int
	starts    int
	stops     int
	destroys  int
	pauses    int
	updated   []*settings.Data
	beginWith Flags
}

func (s *fakeSink) Start() bool {
	s.mu.Lock()
	s.starts++
	flags := s.beginWith
	s.mu.Unlock()
	return s.out.BeginDataCapture(flags)
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.out.EndDataCapture()
}

func (s *fakeSink) Destroy() {
	s.mu.Lock()
	s.destroys++
	s.mu.Unlock()
}

func (s *fakeSink) EncodedPacket(pkt *media.Packet) {
	s.mu.Lock()
	s.packets = append(s.packets, record(pkt))
	s.mu.Unlock()
}

func (s *fakeSink) RawVideo(*media.VideoFrame) {
	s.mu.Lock()
	s.videos++
	s.mu.Unlock()
}

func (s *fakeSink) RawAudio(*media.AudioFrame) {
	s.mu.Lock()
	s.audios++
	s.mu.Unlock()
}

func (s *fakeSink) Update(d *settings.Data) {
	s.mu.Lock()
	s.updated = append(s.updated, d)
	s.mu.Unlock()
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	s.pauses++
	s.mu.Unlock()
}

func (s *fakeSink) received() []recordedPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedPacket(nil), s.packets...)
}

// plainSink implements only Sink.
type plainSink struct{ destroys int }

func (s *plainSink) Start() bool { return true }
func (s *plainSink) Stop()       {}
func (s *plainSink) Destroy()    { s.destroys++ }

// encodedPlainSink accepts packets but cannot pause or update.
type encodedPlainSink struct{ plainSink }

func (s *encodedPlainSink) EncodedPacket(*media.Packet) {}

// testTypes registers:
//   - "enc_av":    encoded video+audio
//   - "enc_video": encoded video only
//   - "raw_av":    raw video+audio
//
// Each Create stores the sink in sinks keyed by output name.
type testEnv struct {
	manager *Manager
	mu      sync.Mutex
	sinks   map[string]*fakeSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{sinks: make(map[string]*fakeSink)}
	types := NewTypes()

	create := func(_ *settings.Data, o *Output) (Sink, error) {
		s := &fakeSink{out: o}
		env.mu.Lock()
		env.sinks[o.Name()] = s
		env.mu.Unlock()
		return s, nil
	}
	defaults := func(s *settings.Data) {
		s.SetDefault("bitrate", 2500)
		s.SetDefault("path", "/tmp/out")
	}
	props := func(locale string) *properties.Properties {
		p := properties.New(locale)
		p.Add("bitrate", "Bitrate", properties.TypeInt)
		p.Add("path", "Path", properties.TypePath)
		return p
	}

	for _, info := range []TypeInfo{
		{ID: "enc_av", Flags: FlagEncoded | FlagAV, Create: create, Defaults: defaults, Properties: props},
		{ID: "enc_video", Flags: FlagEncoded | FlagVideo, Create: create},
		{ID: "raw_av", Flags: FlagAV, Create: create},
	} {
		if err := types.Register(info); err != nil {
			t.Fatalf("Register(%s): %v", info.ID, err)
		}
	}

	env.manager = NewManager(types)
	t.Cleanup(env.manager.Shutdown)
	return env
}

func (e *testEnv) create(t *testing.T, typeID string) (*Output, *fakeSink) {
	t.Helper()
	o, err := e.manager.Create(typeID, t.Name(), nil)
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", typeID, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return o, e.sinks[o.Name()]
}

func packet(typ media.EncoderType, dts int64, den int32) *media.Packet {
	return &media.Packet{
		Type:        typ,
		DTS:         dts,
		PTS:         dts,
		TimebaseNum: 1,
		TimebaseDen: den,
		Data:        []byte{byte(typ), byte(dts)},
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		var zero T
		t.Fatalf("timeout waiting for %T", zero)
		return zero
	}
}
