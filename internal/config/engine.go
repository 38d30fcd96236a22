package config

import (
	"errors"
	"fmt"
	"os"
	"maps"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/smazurov/mediaout/internal/encoder"
	"github.com/smazurov/mediaout/internal/media"
)

// EngineVersion is written to every saved engine file.
const EngineVersion = 1

// EncoderConfig describes one encoder. Only synthetic encoders exist today.
type EncoderConfig struct {
	Type                    string `toml:"type" yaml:"type" json:"type"`
	encoder.SyntheticConfig `yaml:",inline"`
}

// ScaleConfig is a raw video conversion hint.
type ScaleConfig struct {
	Format string `toml:"format,omitempty" yaml:"format,omitempty" json:"format,omitempty"`
	Width  int    `toml:"width,omitempty" yaml:"width,omitempty" json:"width,omitempty"`
	Height int    `toml:"height,omitempty" yaml:"height,omitempty" json:"height,omitempty"`
}

// ConvertConfig is a raw audio conversion hint.
type ConvertConfig struct {
	Format     string `toml:"format,omitempty" yaml:"format,omitempty" json:"format,omitempty"`
	SampleRate int    `toml:"sample_rate,omitempty" yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`
	Speakers   int    `toml:"speakers,omitempty" yaml:"speakers,omitempty" json:"speakers,omitempty"`
}

// ScheduleConfig starts and stops an output on standard five-field cron
// expressions. Either may be empty.
type ScheduleConfig struct {
	Start string `toml:"start,omitempty" yaml:"start,omitempty" json:"start,omitempty"`
	Stop  string `toml:"stop,omitempty" yaml:"stop,omitempty" json:"stop,omitempty"`
}

// OutputConfig describes one output instance.
type OutputConfig struct {
	Type            string         `toml:"type" yaml:"type" json:"type"`
	VideoEncoder    string         `toml:"video_encoder,omitempty" yaml:"video_encoder,omitempty" json:"video_encoder,omitempty"`
	AudioEncoder    string         `toml:"audio_encoder,omitempty" yaml:"audio_encoder,omitempty" json:"audio_encoder,omitempty"`
	Flags           []string       `toml:"flags,omitempty" yaml:"flags,omitempty" json:"flags,omitempty"`
	Autostart       bool           `toml:"autostart" yaml:"autostart" json:"autostart"`
	Settings        map[string]any `toml:"settings,omitempty" yaml:"settings,omitempty" json:"settings,omitempty"`
	VideoConversion *ScaleConfig   `toml:"video_conversion,omitempty" yaml:"video_conversion,omitempty" json:"video_conversion,omitempty"`
	AudioConversion *ConvertConfig `toml:"audio_conversion,omitempty" yaml:"audio_conversion,omitempty" json:"audio_conversion,omitempty"`
	Schedule        *ScheduleConfig `toml:"schedule,omitempty" yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// EngineConfig is the contents of the engine file.
type EngineConfig struct {
	Version  int                      `toml:"version" yaml:"version"`
	Video    media.VideoInfo          `toml:"video" yaml:"video"`
	Audio    media.AudioInfo          `toml:"audio" yaml:"audio"`
	Encoders map[string]EncoderConfig `toml:"encoders" yaml:"encoders"`
	Outputs  map[string]OutputConfig  `toml:"outputs" yaml:"outputs"`
}

// DefaultEngine returns an engine with default pipelines and nothing else.
func DefaultEngine() *EngineConfig {
	return &EngineConfig{
		Version: EngineVersion,
		Video: media.VideoInfo{
			Name:   "video",
			Format: media.PixelNV12,
			Width:  1280,
			Height: 720,
			FPSNum: 30,
			FPSDen: 1,
		},
		Audio: media.AudioInfo{
			Name:       "audio",
			Format:     media.SampleS16,
			SampleRate: encoder.DefaultSampleRate,
			Speakers:   2,
		},
		Encoders: make(map[string]EncoderConfig),
		Outputs:  make(map[string]OutputConfig),
	}
}

// isYAML reports whether path names a YAML engine file. Everything else is
// read as TOML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func unmarshalEngine(path string, data []byte, cfg *EngineConfig) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return toml.Unmarshal(data, cfg)
}

func marshalEngine(path string, cfg *EngineConfig) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(cfg)
	}
	return toml.Marshal(cfg)
}

// LoadEngine reads and validates an engine file, TOML unless the extension
// says YAML. A missing file yields DefaultEngine. Fields absent from the file
// keep their defaults.
func LoadEngine(path string) (*EngineConfig, error) {
	cfg := DefaultEngine()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read engine config: %w", err)
	}

	if err := unmarshalEngine(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse engine config: %w", err)
	}
	if cfg.Encoders == nil {
		cfg.Encoders = make(map[string]EncoderConfig)
	}
	if cfg.Outputs == nil {
		cfg.Outputs = make(map[string]OutputConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks encoder types and output encoder references.
func (c *EngineConfig) Validate() error {
	var errs []error

	for _, name := range sortedKeys(c.Encoders) {
		if _, err := media.ParseEncoderType(c.Encoders[name].Type); err != nil {
			errs = append(errs, fmt.Errorf("encoder %q: %w", name, err))
		}
	}

	for _, name := range sortedKeys(c.Outputs) {
		out := c.Outputs[name]
		if out.Type == "" {
			errs = append(errs, fmt.Errorf("output %q: type is required", name))
		}
		if err := c.checkEncoderRef(out.VideoEncoder, media.EncoderVideo); err != nil {
			errs = append(errs, fmt.Errorf("output %q: %w", name, err))
		}
		if err := c.checkEncoderRef(out.AudioEncoder, media.EncoderAudio); err != nil {
			errs = append(errs, fmt.Errorf("output %q: %w", name, err))
		}
		if err := out.Schedule.validate(); err != nil {
			errs = append(errs, fmt.Errorf("output %q: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func (c *EngineConfig) checkEncoderRef(name string, want media.EncoderType) error {
	if name == "" {
		return nil
	}
	enc, ok := c.Encoders[name]
	if !ok {
		return fmt.Errorf("unknown %s encoder %q", want, name)
	}
	if typ, _ := media.ParseEncoderType(enc.Type); typ != want {
		return fmt.Errorf("encoder %q is %s, want %s", name, enc.Type, want)
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	if s == nil {
		return nil
	}
	for _, spec := range []string{s.Start, s.Stop} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("schedule %q: %w", spec, err)
		}
	}
	return nil
}

// Clone copies c with fresh encoder and output maps. Entries are copied by
// value; their Settings maps are shared.
func (c *EngineConfig) Clone() *EngineConfig {
	out := *c
	out.Encoders = maps.Clone(c.Encoders)
	out.Outputs = maps.Clone(c.Outputs)
	if out.Encoders == nil {
		out.Encoders = make(map[string]EncoderConfig)
	}
	if out.Outputs == nil {
		out.Outputs = make(map[string]OutputConfig)
	}
	return &out
}

// OutputNames returns output names in sorted order so engines are built
// deterministically.
func (c *EngineConfig) OutputNames() []string {
	return sortedKeys(c.Outputs)
}

// EncoderNames returns encoder names in sorted order.
func (c *EngineConfig) EncoderNames() []string {
	return sortedKeys(c.Encoders)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EngineStore persists an engine file and serializes concurrent edits.
type EngineStore struct {
	path string
	mu   sync.Mutex
	cfg  *EngineConfig
}

// NewEngineStore creates a store for the engine file at path.
func NewEngineStore(path string) *EngineStore {
	return &EngineStore{path: path, cfg: DefaultEngine()}
}

// Path returns the engine file location.
func (s *EngineStore) Path() string {
	return s.path
}

// Load reads the engine file into the store.
func (s *EngineStore) Load() (*EngineConfig, error) {
	cfg, err := LoadEngine(s.path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return cfg, nil
}

// Current returns the last loaded or saved config.
func (s *EngineStore) Current() *EngineConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetOutputSettings replaces one output's settings table and saves the file.
// Configs handed out earlier are not modified.
func (s *EngineStore) SetOutputSettings(name string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, ok := s.cfg.Outputs[name]
	if !ok {
		return fmt.Errorf("output %q not found in engine config", name)
	}
	next := s.cfg.Clone()
	out.Settings = values
	next.Outputs[name] = out
	s.cfg = next
	return s.saveLocked()
}

// Save writes the current config to disk.
func (s *EngineStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes via a temp file and rename so watchers never read a
// partial file. Must hold s.mu.
func (s *EngineStore) saveLocked() error {
	s.cfg.Version = EngineVersion

	data, err := marshalEngine(s.path, s.cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal engine config: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write engine config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace engine config: %w", err)
	}
	return nil
}
