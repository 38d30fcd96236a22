// Package engine builds a running output core from an engine file: default
// pipelines, synthetic encoders and output instances, and applies later
// versions of the file to the running objects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smazurov/mediaout/internal/config"
	"github.com/smazurov/mediaout/internal/encoder"
	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/output"
	"github.com/smazurov/mediaout/internal/pipeline"
	"github.com/smazurov/mediaout/internal/settings"
	"github.com/smazurov/mediaout/internal/sinks"
)

// DefaultTypes returns a registry holding the built-in output types.
func DefaultTypes() (*output.Types, error) {
	types := output.NewTypes()
	if err := sinks.Register(types); err != nil {
		return nil, err
	}
	return types, nil
}

// Engine owns the objects described by one engine file.
type Engine struct {
	logger  *slog.Logger
	manager *output.Manager

	mu        sync.Mutex
	cfg       *config.EngineConfig
	encoders  map[string]*encoder.Encoder
	synthetic map[string]*encoder.Synthetic
	outputs   map[string]*output.Output

	sched   *cron.Cron
	entries map[string][]cron.EntryID

	// Set while running.
	ctx     context.Context
	cancel  context.CancelFunc
	runners map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New builds pipelines, encoders and outputs from cfg. Nothing runs until
// Start. On error every object already built is destroyed.
func New(types *output.Types, cfg *config.EngineConfig) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		logger:    logging.GetLogger("engine"),
		manager:   output.NewManager(types),
		cfg:       cfg,
		encoders:  make(map[string]*encoder.Encoder),
		synthetic: make(map[string]*encoder.Synthetic),
		outputs:   make(map[string]*output.Output),
		runners:   make(map[string]context.CancelFunc),
		entries:   make(map[string][]cron.EntryID),
	}
	e.sched = cron.New(cron.WithLogger(cronLogger{e.logger}))
	e.manager.SetMedia(pipeline.NewVideo(cfg.Video), pipeline.NewAudio(cfg.Audio))

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, name := range cfg.EncoderNames() {
		e.addEncoderLocked(name, cfg.Encoders[name])
	}
	for _, name := range cfg.OutputNames() {
		if err := e.addOutputLocked(name, cfg.Outputs[name]); err != nil {
			e.closeLocked()
			return nil, err
		}
	}

	e.logger.Info("Engine built", "encoders", len(e.encoders), "outputs", len(e.outputs))
	return e, nil
}

// Manager returns the output manager.
func (e *Engine) Manager() *output.Manager {
	return e.manager
}

// Config returns the engine file the running objects reflect.
func (e *Engine) Config() *config.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Encoder returns the named encoder or nil.
func (e *Engine) Encoder(name string) *encoder.Encoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encoders[name]
}

// Output returns the output built for the named engine file entry or nil.
func (e *Engine) Output(name string) *output.Output {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputs[name]
}

// Running reports whether Start has been called and Close has not.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx != nil
}

// Start runs every synthetic encoder and starts outputs marked autostart.
// Runners stop when ctx is done or Close is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.sched.Start()

	for _, name := range e.cfg.EncoderNames() {
		e.startRunnerLocked(name)
	}
	for _, name := range e.cfg.OutputNames() {
		if e.cfg.Outputs[name].Autostart {
			e.startOutputLocked(name)
		}
	}
}

// Close stops outputs and encoders and destroys everything the engine built.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
}

func (e *Engine) closeLocked() {
	// Jobs already running block on e.mu and then see a stopped engine.
	e.sched.Stop()
	for name := range e.entries {
		e.unscheduleLocked(name)
	}

	for _, o := range e.outputs {
		if o.IsActive() {
			o.Stop()
		}
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.ctx, e.cancel = nil, nil
	clear(e.runners)

	for name, enc := range e.encoders {
		enc.Destroy()
		delete(e.encoders, name)
		delete(e.synthetic, name)
	}
	clear(e.outputs)
	e.manager.Shutdown()
	e.logger.Info("Engine closed")
}

// Apply brings the running objects in line with cfg. Removed entries are
// destroyed, new ones are built (and started when the engine runs), and
// outputs that survive get their settings merged through Output.Update.
// Changing an output's type rebuilds it. Pipeline changes need a restart.
func (e *Engine) Apply(cfg *config.EngineConfig) error {
	if cfg == nil {
		return errors.New("engine config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.cfg
	if old.Video != cfg.Video || old.Audio != cfg.Audio {
		e.logger.Warn("Pipeline changes take effect after restart")
	}

	// Active outputs on a replaced encoder are stopped and started again once
	// everything is rebuilt.
	var restart []string
	for _, name := range old.EncoderNames() {
		next, ok := cfg.Encoders[name]
		if ok && next == old.Encoders[name] {
			continue
		}
		restart = append(restart, e.stopOutputsUsingLocked(name)...)
		e.removeEncoderLocked(name)
		if ok {
			e.addEncoderLocked(name, next)
			e.startRunnerLocked(name)
		}
	}
	for _, name := range cfg.EncoderNames() {
		if _, existed := old.Encoders[name]; !existed {
			e.addEncoderLocked(name, cfg.Encoders[name])
			e.startRunnerLocked(name)
		}
	}

	var errs []error
	for _, name := range old.OutputNames() {
		next, ok := cfg.Outputs[name]
		if ok && next.Type == old.Outputs[name].Type {
			if err := e.updateOutputLocked(name, next); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		e.removeOutputLocked(name)
		if ok {
			errs = append(errs, e.createAndStartLocked(name, next))
		}
	}
	for _, name := range cfg.OutputNames() {
		if _, existed := old.Outputs[name]; !existed {
			errs = append(errs, e.createAndStartLocked(name, cfg.Outputs[name]))
		}
	}

	e.cfg = cfg
	for _, name := range restart {
		e.startOutputLocked(name)
	}
	e.logger.Info("Engine config applied", "encoders", len(e.encoders), "outputs", len(e.outputs))
	return errors.Join(errs...)
}

func (e *Engine) addEncoderLocked(name string, ec config.EncoderConfig) {
	typ, _ := media.ParseEncoderType(ec.Type)
	enc := encoder.New(name, typ)
	e.encoders[name] = enc
	e.synthetic[name] = encoder.NewSynthetic(enc, ec.SyntheticConfig)

	// Rebind outputs that name this encoder.
	for outName, o := range e.outputs {
		oc := e.cfg.Outputs[outName]
		if oc.VideoEncoder == name {
			o.SetVideoEncoder(enc)
		}
		if oc.AudioEncoder == name {
			o.SetAudioEncoder(enc)
		}
	}
}

func (e *Engine) removeEncoderLocked(name string) {
	if cancel, ok := e.runners[name]; ok {
		cancel()
		delete(e.runners, name)
	}
	if enc, ok := e.encoders[name]; ok {
		// Unbinds every output through RemoveEncoder.
		enc.Destroy()
	}
	delete(e.encoders, name)
	delete(e.synthetic, name)
}

// stopOutputsUsingLocked stops active outputs bound to the named encoder and
// returns their names.
func (e *Engine) stopOutputsUsingLocked(encName string) []string {
	var stopped []string
	for _, name := range e.cfg.OutputNames() {
		oc := e.cfg.Outputs[name]
		if oc.VideoEncoder != encName && oc.AudioEncoder != encName {
			continue
		}
		if o := e.outputs[name]; o != nil && o.IsActive() {
			o.Stop()
			stopped = append(stopped, name)
		}
	}
	return stopped
}

func (e *Engine) startRunnerLocked(name string) {
	if e.ctx == nil {
		return
	}
	syn, ok := e.synthetic[name]
	if !ok {
		return
	}
	if _, running := e.runners[name]; running {
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.runners[name] = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		syn.Run(ctx)
	}()
	e.logger.Debug("Encoder running", "encoder", name, "interval", syn.Interval())
}

func (e *Engine) addOutputLocked(name string, oc config.OutputConfig) error {
	s, err := outputSettings(oc)
	if err != nil {
		return fmt.Errorf("output %q: %w", name, err)
	}
	o, err := e.manager.Create(oc.Type, name, s)
	s.Release()
	if err != nil {
		return fmt.Errorf("output %q: %w", name, err)
	}
	e.outputs[name] = o
	e.bindLocked(o, oc)
	if err := e.scheduleLocked(name, oc.Schedule); err != nil {
		return fmt.Errorf("output %q: %w", name, err)
	}
	return nil
}

func (e *Engine) createAndStartLocked(name string, oc config.OutputConfig) error {
	if err := e.addOutputLocked(name, oc); err != nil {
		return err
	}
	if oc.Autostart && e.ctx != nil {
		e.startOutputLocked(name)
	}
	return nil
}

func (e *Engine) removeOutputLocked(name string) {
	e.unscheduleLocked(name)
	if o, ok := e.outputs[name]; ok {
		o.Destroy()
		delete(e.outputs, name)
	}
}

// updateOutputLocked merges new settings and rebinds producers. An active
// output whose producers change is restarted so its hooks follow.
func (e *Engine) updateOutputLocked(name string, oc config.OutputConfig) error {
	o := e.outputs[name]
	prev := e.cfg.Outputs[name]

	s, err := outputSettings(oc)
	if err != nil {
		return fmt.Errorf("output %q: %w", name, err)
	}
	if !reflect.DeepEqual(prev.Settings, oc.Settings) || !slices.Equal(prev.Flags, oc.Flags) {
		o.Update(s)
	}
	s.Release()

	if !reflect.DeepEqual(prev.Schedule, oc.Schedule) {
		e.unscheduleLocked(name)
		if err := e.scheduleLocked(name, oc.Schedule); err != nil {
			return fmt.Errorf("output %q: %w", name, err)
		}
	}

	rebind := prev.VideoEncoder != oc.VideoEncoder ||
		prev.AudioEncoder != oc.AudioEncoder ||
		!reflect.DeepEqual(prev.VideoConversion, oc.VideoConversion) ||
		!reflect.DeepEqual(prev.AudioConversion, oc.AudioConversion)
	if !rebind {
		return nil
	}

	wasActive := o.IsActive()
	if wasActive {
		o.Stop()
	}
	e.bindLocked(o, oc)
	if wasActive {
		e.startOutputLocked(name)
	}
	return nil
}

func (e *Engine) bindLocked(o *output.Output, oc config.OutputConfig) {
	// A missing name yields nil, which unbinds the slot.
	o.SetVideoEncoder(e.encoders[oc.VideoEncoder])
	o.SetAudioEncoder(e.encoders[oc.AudioEncoder])

	if c := oc.VideoConversion; c != nil {
		o.SetVideoConversion(&media.VideoScaleInfo{
			Format: media.PixelFormat(c.Format),
			Width:  c.Width,
			Height: c.Height,
		})
	} else {
		o.SetVideoConversion(nil)
	}

	if c := oc.AudioConversion; c != nil {
		o.SetAudioConversion(&media.AudioConvertInfo{
			Format:     media.SampleFormat(c.Format),
			SampleRate: c.SampleRate,
			Speakers:   c.Speakers,
		})
	} else {
		o.SetAudioConversion(nil)
	}
}

func (e *Engine) startOutputLocked(name string) {
	o := e.outputs[name]
	if o == nil || o.IsActive() {
		return
	}
	if !o.Start() {
		e.logger.Warn("Output did not start", "output", name)
	}
}

// scheduleLocked registers cron entries that start and stop the named output.
func (e *Engine) scheduleLocked(name string, sc *config.ScheduleConfig) error {
	if sc == nil {
		return nil
	}
	add := func(spec string, start bool) error {
		if spec == "" {
			return nil
		}
		id, err := e.sched.AddFunc(spec, func() { e.runScheduled(name, start) })
		if err != nil {
			return fmt.Errorf("schedule %q: %w", spec, err)
		}
		e.entries[name] = append(e.entries[name], id)
		return nil
	}
	if err := add(sc.Start, true); err != nil {
		return err
	}
	if err := add(sc.Stop, false); err != nil {
		e.unscheduleLocked(name)
		return err
	}
	e.logger.Debug("Output scheduled", "output", name, "start", sc.Start, "stop", sc.Stop)
	return nil
}

func (e *Engine) unscheduleLocked(name string) {
	for _, id := range e.entries[name] {
		e.sched.Remove(id)
	}
	delete(e.entries, name)
}

// runScheduled is the cron job body. Scheduled starts only happen on a
// running engine.
func (e *Engine) runScheduled(name string, start bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return
	}
	o := e.outputs[name]
	if o == nil {
		return
	}
	if start {
		e.logger.Info("Scheduled output start", "output", name)
		e.startOutputLocked(name)
		return
	}
	if o.IsActive() {
		e.logger.Info("Scheduled output stop", "output", name)
		o.Stop()
	}
}

// NextRun returns the next scheduled start and stop of the named output.
// A zero time means that side is not scheduled.
func (e *Engine) NextRun(name string) (start, stop time.Time) {
	e.mu.Lock()
	sc := e.cfg.Outputs[name].Schedule
	e.mu.Unlock()
	if sc == nil {
		return time.Time{}, time.Time{}
	}
	now := time.Now()
	return nextAt(sc.Start, now), nextAt(sc.Stop, now)
}

func nextAt(spec string, now time.Time) time.Time {
	if spec == "" {
		return time.Time{}
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now)
}

// cronLogger routes scheduler logs to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// outputSettings builds the settings snapshot for an output entry. The
// caller owns the returned reference.
func outputSettings(oc config.OutputConfig) (*settings.Data, error) {
	if _, err := output.ParseFlags(oc.Flags); err != nil {
		return nil, err
	}
	s := settings.FromMap(oc.Settings)
	if len(oc.Flags) > 0 {
		s.Set(sinks.SettingCapture, strings.Join(oc.Flags, ","))
	}
	return s, nil
}
