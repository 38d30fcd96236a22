package sinks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/output"
	"github.com/smazurov/mediaout/internal/procs"
	"github.com/smazurov/mediaout/internal/properties"
	"github.com/smazurov/mediaout/internal/settings"
)

type rawMonitor struct {
	out    *output.Output
	logger *slog.Logger

	mu             sync.Mutex
	videoFrames    uint64
	audioFrames    uint64
	audioSamples   uint64
	lastVideoTS    uint64
	lastAudioTS    uint64
	lastResolution [2]int
	logEvery       uint64
	capture        output.Flags
}

func rawDefaults(s *settings.Data) {
	s.SetDefault(SettingLogEvery, 0)
}

func rawProperties(locale string) *properties.Properties {
	p := properties.New(locale)
	p.Add(SettingLogEvery, "Log a line every N video frames (0 disables)", properties.TypeInt)
	p.Add(SettingCapture, "Media to capture: video, audio or av (empty for all)", properties.TypeText)
	return p
}

func newRawMonitor(s *settings.Data, o *output.Output) (output.Sink, error) {
	r := &rawMonitor{
		out:    o,
		logger: logging.GetLogger("sinks").With("sink", RawMonitorID, "output", o.Name()),
	}
	r.Update(s)
	if err := o.Procs().Add("stats", r.statsProc); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rawMonitor) Start() bool {
	r.mu.Lock()
	flags := r.capture
	r.mu.Unlock()
	return r.out.BeginDataCapture(flags)
}

func (r *rawMonitor) Stop() {
	r.out.EndDataCapture()
}

func (r *rawMonitor) Destroy() {}

func (r *rawMonitor) Update(s *settings.Data) {
	every := s.Int(SettingLogEvery)
	if every < 0 {
		every = 0
	}
	flags := captureFlags(s, r.logger)
	r.mu.Lock()
	r.logEvery = uint64(every)
	r.capture = flags
	r.mu.Unlock()
}

func (r *rawMonitor) RawVideo(frame *media.VideoFrame) {
	r.mu.Lock()
	r.videoFrames++
	r.lastVideoTS = frame.Timestamp
	r.lastResolution = [2]int{frame.Width, frame.Height}
	count, every := r.videoFrames, r.logEvery
	r.mu.Unlock()

	if every > 0 && count%every == 0 {
		r.logger.Debug("Raw video frames", "frames", count, "width", frame.Width, "height", frame.Height)
	}
}

func (r *rawMonitor) RawAudio(frame *media.AudioFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioFrames++
	r.audioSamples += uint64(frame.Frames)
	r.lastAudioTS = frame.Timestamp
}

func (r *rawMonitor) statsProc(_ context.Context, _ procs.Params) (procs.Params, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return procs.Params{
		"video_frames":  r.videoFrames,
		"audio_frames":  r.audioFrames,
		"audio_samples": r.audioSamples,
		"last_video_ts": r.lastVideoTS,
		"last_audio_ts": r.lastAudioTS,
		"width":         r.lastResolution[0],
		"height":        r.lastResolution[1],
	}, nil
}
