package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smazurov/mediaout/internal/media"
)

const engineTOML = `
[video]
format = "i420"
width = 1920
height = 1080

[encoders.h264]
type = "video"
rate = 25

[encoders.aac]
type = "audio"

[outputs.recorder]
type = "null_output"
video_encoder = "h264"
audio_encoder = "aac"
autostart = true

[outputs.recorder.settings]
history = 8

[outputs.monitor]
type = "raw_monitor"
flags = ["video"]

[outputs.monitor.video_conversion]
width = 640
height = 360
`

func TestLoadEngine(t *testing.T) {
	cfg, err := LoadEngine(writeFile(t, "outputs.toml", engineTOML))
	if err != nil {
		t.Fatalf("LoadEngine failed: %v", err)
	}

	if cfg.Video.Format != media.PixelI420 || cfg.Video.Width != 1920 {
		t.Errorf("video = %+v", cfg.Video)
	}
	// Absent fields keep defaults.
	if cfg.Video.FPSNum != 30 || cfg.Audio.SampleRate != 48000 {
		t.Errorf("defaults lost: video %+v audio %+v", cfg.Video, cfg.Audio)
	}

	if got := cfg.Encoders["h264"]; got.Type != "video" || got.Rate != 25 {
		t.Errorf("h264 encoder = %+v", got)
	}

	rec := cfg.Outputs["recorder"]
	if !rec.Autostart || rec.VideoEncoder != "h264" || rec.AudioEncoder != "aac" {
		t.Errorf("recorder = %+v", rec)
	}
	if rec.Settings["history"] != int64(8) {
		t.Errorf("recorder settings = %v", rec.Settings)
	}

	mon := cfg.Outputs["monitor"]
	if mon.VideoConversion == nil || mon.VideoConversion.Width != 640 {
		t.Errorf("monitor conversion = %+v", mon.VideoConversion)
	}
	if mon.AudioConversion != nil {
		t.Errorf("unexpected audio conversion %+v", mon.AudioConversion)
	}

	if names := cfg.OutputNames(); len(names) != 2 || names[0] != "monitor" {
		t.Errorf("OutputNames() = %v", names)
	}
}

func TestLoadEngineMissingFile(t *testing.T) {
	cfg, err := LoadEngine(filepath.Join(t.TempDir(), "outputs.toml"))
	if err != nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if cfg.Version != EngineVersion || len(cfg.Outputs) != 0 || cfg.Encoders == nil {
		t.Errorf("unexpected default engine %+v", cfg)
	}
}

func TestEngineValidate(t *testing.T) {
	tests := []struct {
		name    string
		toml    string
		wantErr string
	}{
		{
			name:    "bad encoder type",
			toml:    "[encoders.x]\ntype = \"subtitle\"\n",
			wantErr: `encoder "x"`,
		},
		{
			name:    "missing output type",
			toml:    "[outputs.o]\nautostart = true\n",
			wantErr: "type is required",
		},
		{
			name:    "unknown encoder",
			toml:    "[outputs.o]\ntype = \"null_output\"\nvideo_encoder = \"nope\"\n",
			wantErr: `unknown video encoder "nope"`,
		},
		{
			name:    "bad schedule",
			toml:    "[outputs.o]\ntype = \"null_output\"\n[outputs.o.schedule]\nstart = \"every day\"\n",
			wantErr: `schedule "every day"`,
		},
		{
			name:    "audio encoder in video slot",
			toml:    "[encoders.aac]\ntype = \"audio\"\n[outputs.o]\ntype = \"null_output\"\nvideo_encoder = \"aac\"\n",
			wantErr: "is audio, want video",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEngine(writeFile(t, "outputs.toml", tt.toml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEngineStoreSaveRoundTrip(t *testing.T) {
	path := writeFile(t, "outputs.toml", engineTOML)
	store := NewEngineStore(path)
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}

	if err := store.SetOutputSettings("recorder", map[string]any{"history": 2, "fail_start": true}); err != nil {
		t.Fatalf("SetOutputSettings failed: %v", err)
	}
	if err := store.SetOutputSettings("ghost", nil); err == nil {
		t.Error("expected error for unknown output")
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	reloaded, err := LoadEngine(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	rec := reloaded.Outputs["recorder"]
	if rec.Settings["history"] != int64(2) || rec.Settings["fail_start"] != true {
		t.Errorf("settings not persisted: %v", rec.Settings)
	}
	if reloaded.Encoders["h264"].Rate != 25 {
		t.Errorf("encoders lost on save: %+v", reloaded.Encoders)
	}
}

const engineYAML = `
video:
  width: 1920
  height: 1080
encoders:
  h264:
    type: video
    rate: 25
outputs:
  recorder:
    type: null_output
    video_encoder: h264
    flags: [video]
    settings:
      history: 8
    schedule:
      start: "0 9 * * 1-5"
`

func TestLoadEngineYAML(t *testing.T) {
	cfg, err := LoadEngine(writeFile(t, "outputs.yaml", engineYAML))
	if err != nil {
		t.Fatalf("LoadEngine failed: %v", err)
	}
	if cfg.Video.Width != 1920 || cfg.Video.FPSNum != 30 {
		t.Errorf("video = %+v", cfg.Video)
	}
	if got := cfg.Encoders["h264"]; got.Type != "video" || got.Rate != 25 {
		t.Errorf("h264 encoder = %+v", got)
	}
	rec := cfg.Outputs["recorder"]
	if rec.Settings["history"] != 8 || len(rec.Flags) != 1 {
		t.Errorf("recorder = %+v", rec)
	}
	if rec.Schedule == nil || rec.Schedule.Start != "0 9 * * 1-5" {
		t.Errorf("schedule = %+v", rec.Schedule)
	}
}

func TestEngineStoreYAMLSave(t *testing.T) {
	path := writeFile(t, "outputs.yml", engineYAML)
	store := NewEngineStore(path)
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if err := store.SetOutputSettings("recorder", map[string]any{"history": 3}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "[outputs") {
		t.Errorf("YAML file rewritten as TOML:\n%s", data)
	}
	reloaded, err := LoadEngine(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Outputs["recorder"].Settings["history"] != 3 {
		t.Errorf("settings = %v", reloaded.Outputs["recorder"].Settings)
	}
}

func TestSetOutputSettingsCopiesConfig(t *testing.T) {
	store := NewEngineStore(writeFile(t, "outputs.toml", engineTOML))
	before, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetOutputSettings("recorder", map[string]any{"history": 1}); err != nil {
		t.Fatal(err)
	}

	if before.Outputs["recorder"].Settings["history"] != int64(8) {
		t.Error("config handed out by Load was modified")
	}
	if store.Current() == before {
		t.Error("store still holds the old config")
	}
}
