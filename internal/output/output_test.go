package output

import (
	"errors"
	"testing"

	"github.com/smazurov/mediaout/internal/encoder"
	"github.com/smazurov/mediaout/internal/events"
	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/settings"
)

func TestCreateUnknownType(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.manager.Create("missing", "x", nil)
	if o != nil {
		t.Error("expected nil output")
	}
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("error = %v, want ErrTypeNotFound", err)
	}
}

func TestCreateConstructionFailure(t *testing.T) {
	types := NewTypes()
	plain := &plainSink{}
	mustRegister(t, types, TypeInfo{ID: "nil_sink", Flags: FlagEncoded | FlagAV,
		Create: func(*settings.Data, *Output) (Sink, error) { return nil, nil }})
	mustRegister(t, types, TypeInfo{ID: "failing", Flags: FlagAV,
		Create: func(*settings.Data, *Output) (Sink, error) { return nil, errors.New("no device") }})
	mustRegister(t, types, TypeInfo{ID: "no_packets", Flags: FlagEncoded | FlagVideo,
		Create: func(*settings.Data, *Output) (Sink, error) { return plain, nil }})
	partial := &plainSink{}
	mustRegister(t, types, TypeInfo{ID: "partial", Flags: FlagAV,
		Create: func(*settings.Data, *Output) (Sink, error) { return partial, errors.New("half open") }})

	m := NewManager(types)
	defer m.Shutdown()

	for _, id := range []string{"nil_sink", "failing", "no_packets", "partial"} {
		t.Run(id, func(t *testing.T) {
			s := settings.New()
			defer s.Release()

			o, err := m.Create(id, id, s)
			if o != nil {
				t.Error("expected nil output")
			}
			if !errors.Is(err, ErrConstructionFailure) {
				t.Errorf("error = %v, want ErrConstructionFailure", err)
			}
			if s.Refs() != 1 {
				t.Errorf("caller settings refs = %d, want 1 after failed create", s.Refs())
			}
			if len(m.Outputs()) != 0 {
				t.Error("failed output must not be registered")
			}
		})
	}

	if plain.destroys != 1 {
		t.Errorf("sink created before the failure destroyed %d times, want 1", plain.destroys)
	}
	if partial.destroys != 1 {
		t.Errorf("sink returned with an error destroyed %d times, want 1", partial.destroys)
	}
}

func TestDestroyUnconstructedOutput(t *testing.T) {
	o := &Output{}
	o.Destroy()
	o.Destroy()

	var nilOutput *Output
	nilOutput.Destroy()
}

func TestDestroyRunsOnce(t *testing.T) {
	env := newTestEnv(t)
	o, sink := env.create(t, "enc_av")

	o.Destroy()
	o.Destroy()

	if sink.destroys != 1 {
		t.Errorf("sink destroyed %d times, want 1", sink.destroys)
	}
	if env.manager.Find(o.Name()) != nil {
		t.Error("destroyed output still registered")
	}
}

func TestCreateRegistersAndPublishes(t *testing.T) {
	env := newTestEnv(t)
	created := make(chan events.OutputCreatedEvent, 1)
	unsub := env.manager.Events().Subscribe(func(e events.OutputCreatedEvent) { created <- e })
	defer unsub()

	o, _ := env.create(t, "enc_av")

	ev := waitFor(t, created)
	if ev.OutputID != o.ID() || ev.Output != o.Name() || ev.OutputType != "enc_av" {
		t.Errorf("created event = %+v", ev)
	}
	if got := env.manager.Outputs(); len(got) != 1 || got[0] != o {
		t.Errorf("Outputs() = %v", got)
	}
	if env.manager.Find(o.ID()) != o || env.manager.Find(o.Name()) != o {
		t.Error("Find by ID or name failed")
	}
	if o.TypeID() != "enc_av" || o.Flags() != FlagEncoded|FlagAV {
		t.Errorf("TypeID/Flags = %s/%v", o.TypeID(), o.Flags())
	}
}

func TestCreateAppliesDefaultsToSharedSettings(t *testing.T) {
	env := newTestEnv(t)
	s := settings.New()
	s.Set("bitrate", 6000)
	defer s.Release()

	o, err := env.manager.Create("enc_av", t.Name(), s)
	if err != nil {
		t.Fatal(err)
	}
	if s.Refs() != 2 {
		t.Errorf("refs = %d, want 2 while the output holds a reference", s.Refs())
	}

	got := o.Settings()
	if got.Int("bitrate") != 6000 || got.String("path") != "/tmp/out" {
		t.Errorf("settings = %v", got.Map())
	}
	got.Release()

	o.Destroy()
	if s.Refs() != 1 {
		t.Errorf("refs = %d after destroy, want 1", s.Refs())
	}
}

func TestUpdateMergesAndReplaces(t *testing.T) {
	env := newTestEnv(t)
	o, sink := env.create(t, "enc_av")
	o.Update(settings.FromMap(map[string]any{"bitrate": 1000, "keyint": 2}))

	before := o.Settings()
	defer before.Release()

	update := settings.FromMap(map[string]any{"bitrate": 4000})
	defer update.Release()
	o.Update(update)

	after := o.Settings()
	defer after.Release()

	if after.Int("bitrate") != 4000 || after.Int("keyint") != 2 {
		t.Errorf("merged settings = %v", after.Map())
	}
	if before.Int("bitrate") != 1000 {
		t.Error("a held snapshot must not change when the output updates")
	}
	if len(sink.updated) != 2 || sink.updated[1].Int("bitrate") != 4000 {
		t.Errorf("Update hook not called with the merged settings")
	}
}

func TestStartStopPassThrough(t *testing.T) {
	env := newTestEnv(t)
	o, sink := env.create(t, "enc_video")
	o.SetVideoEncoder(encoder.New("v", media.EncoderVideo))

	if !o.Start() || !o.IsActive() {
		t.Fatal("Start should begin capture")
	}
	o.Stop()
	if o.IsActive() {
		t.Error("Stop should end capture")
	}
	if sink.starts != 1 || sink.stops != 1 {
		t.Errorf("starts=%d stops=%d", sink.starts, sink.stops)
	}
}

func TestPause(t *testing.T) {
	env := newTestEnv(t)
	o, sink := env.create(t, "enc_av")
	if !o.CanPause() || !o.Pause() || sink.pauses != 1 {
		t.Error("fake sink should pause")
	}

	types := NewTypes()
	mustRegister(t, types, TypeInfo{ID: "plain", Flags: FlagEncoded | FlagVideo,
		Create: func(*settings.Data, *Output) (Sink, error) { return &encodedPlainSink{}, nil }})
	m := NewManager(types)
	defer m.Shutdown()

	plain, err := m.Create("plain", t.Name()+"plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	if plain.CanPause() || plain.Pause() {
		t.Error("sink without Pause must not report pausing")
	}
}

func TestPropertiesAndDefaults(t *testing.T) {
	env := newTestEnv(t)

	d := env.manager.Defaults("enc_av")
	if d.Int("bitrate") != 2500 {
		t.Errorf("defaults = %v", d.Map())
	}
	d.Release()
	if env.manager.Defaults("missing") != nil {
		t.Error("unknown type should have no defaults")
	}

	props := env.manager.TypeProperties("enc_av", "en-US")
	if props.Locale() != "en-US" || props.Get("bitrate").Value != int64(2500) {
		t.Errorf("type properties = %+v", props.List())
	}

	o, _ := env.create(t, "enc_av")
	o.Update(settings.FromMap(map[string]any{"bitrate": 800}))
	if v := o.Properties("en-US").Get("bitrate").Value; v != int64(800) {
		t.Errorf("output property bitrate = %v, want 800", v)
	}
}

func TestManagerSetMedia(t *testing.T) {
	env := newTestEnv(t)
	o, _ := env.create(t, "raw_av")
	if o.Video() != nil {
		t.Fatal("no pipelines configured yet")
	}

	video, audio := testPipelines()
	env.manager.SetMedia(video, audio)
	if o.Video() != video || o.Audio() != audio {
		t.Error("existing outputs should switch to the new pipelines")
	}

	o2, err := env.manager.Create("raw_av", "second", nil)
	if err != nil {
		t.Fatal(err)
	}
	if o2.Video() != video {
		t.Error("new outputs should use the process-wide pipelines")
	}
}

func TestShutdownDestroysAll(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"a", "b", "c"} {
		if _, err := env.manager.Create("enc_av", t.Name()+name, nil); err != nil {
			t.Fatal(err)
		}
	}
	env.manager.Shutdown()
	if len(env.manager.Outputs()) != 0 {
		t.Error("Shutdown left outputs registered")
	}
	for name, s := range env.sinks {
		if s.destroys != 1 {
			t.Errorf("%s destroyed %d times", name, s.destroys)
		}
	}
}

func TestNilOutputIsSafe(t *testing.T) {
	var o *Output
	enc := encoder.New("v", media.EncoderVideo)

	if o.Start() || o.IsActive() || o.CanPause() || o.Pause() {
		t.Error("nil output should report false")
	}
	if o.CanBeginDataCapture(0) || o.BeginDataCapture(0) {
		t.Error("nil output cannot capture")
	}
	o.Stop()
	o.EndDataCapture()
	o.SignalStartFailure(CodeError)
	o.Update(settings.New())
	o.SetVideoEncoder(enc)
	o.SetAudioEncoder(nil)
	o.RemoveEncoder(enc)
	o.SetMedia(nil, nil)
	o.SetVideoConversion(&media.VideoScaleInfo{})
	o.SetAudioConversion(nil)

	if o.Settings() != nil || o.VideoEncoder() != nil || o.AudioEncoder() != nil ||
		o.Video() != nil || o.Audio() != nil || o.Events() != nil || o.Procs() != nil ||
		o.Properties("en") != nil {
		t.Error("nil output getters should return nil")
	}
	if o.ID() != "" || o.Name() != "" || o.TypeID() != "" || o.Flags() != 0 {
		t.Error("nil output identity should be empty")
	}
	if len(enc.Outputs()) != 0 {
		t.Error("nil output must not be linked to an encoder")
	}
}

func TestTypesRegistry(t *testing.T) {
	types := NewTypes()
	create := func(*settings.Data, *Output) (Sink, error) { return &plainSink{}, nil }

	if err := types.Register(TypeInfo{ID: "b", Create: create}); err != nil {
		t.Fatal(err)
	}
	if err := types.Register(TypeInfo{ID: "a", Create: create}); err != nil {
		t.Fatal(err)
	}
	if err := types.Register(TypeInfo{ID: "a", Create: create}); !errors.Is(err, ErrTypeExists) {
		t.Errorf("duplicate register error = %v", err)
	}
	if err := types.Register(TypeInfo{ID: "c"}); err == nil {
		t.Error("type without Create should be rejected")
	}
	if ids := types.IDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs() = %v", ids)
	}
}

func mustRegister(t *testing.T, types *Types, info TypeInfo) {
	t.Helper()
	if err := types.Register(info); err != nil {
		t.Fatalf("Register(%s): %v", info.ID, err)
	}
}
