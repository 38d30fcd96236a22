// Package sinks provides the built-in output types: a null output that
// consumes interleaved encoded packets and a raw monitor that counts frames.
package sinks

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/output"
	"github.com/smazurov/mediaout/internal/procs"
	"github.com/smazurov/mediaout/internal/properties"
	"github.com/smazurov/mediaout/internal/settings"
)

// Type identifiers.
const (
	NullOutputID = "null_output"
	RawMonitorID = "raw_monitor"
)

// Setting keys.
const (
	SettingFailStart = "fail_start"
	SettingFailCode  = "fail_code"
	SettingHistory   = "history"
	SettingLogEvery  = "log_every"
	SettingCapture   = "capture"
)

const defaultHistory = 32

// PacketRecord summarizes one delivered packet.
type PacketRecord struct {
	Type     string `json:"type"`
	DTS      int64  `json:"dts"`
	PTS      int64  `json:"pts"`
	DTSUsec  int64  `json:"dts_usec"`
	Size     int    `json:"size"`
	Keyframe bool   `json:"keyframe"`
}

// NullStats is the snapshot returned by the null output's stats procedure.
type NullStats struct {
	Packets      uint64 `json:"packets"`
	Bytes        uint64 `json:"bytes"`
	VideoPackets uint64 `json:"video_packets"`
	AudioPackets uint64 `json:"audio_packets"`
	LastVideoDTS int64  `json:"last_video_dts"`
	LastAudioDTS int64  `json:"last_audio_dts"`
	Paused       bool   `json:"paused"`
}

type nullOutput struct {
	out    *output.Output
	logger *slog.Logger

	mu        sync.Mutex
	stats     NullStats
	history   []PacketRecord
	maxHist   int
	failStart bool
	failCode  int
	capture   output.Flags

	signals sync.WaitGroup // pending start-failure reports
}

// captureFlags reads the capture setting, a comma separated flag list such
// as "video" or "av". Empty or invalid means the type's full set.
func captureFlags(s *settings.Data, logger *slog.Logger) output.Flags {
	raw := s.String(SettingCapture)
	if raw == "" {
		return 0
	}
	flags, err := output.ParseFlags(strings.Split(raw, ","))
	if err != nil {
		logger.Warn("Ignoring invalid capture setting", "capture", raw, "error", err)
		return 0
	}
	return flags
}

func nullDefaults(s *settings.Data) {
	s.SetDefault(SettingFailStart, false)
	s.SetDefault(SettingFailCode, output.CodeConnectFailed)
	s.SetDefault(SettingHistory, defaultHistory)
}

func nullProperties(locale string) *properties.Properties {
	p := properties.New(locale)
	p.Add(SettingHistory, "Number of delivered packets to remember", properties.TypeInt)
	p.Add(SettingFailStart, "Report an asynchronous start failure instead of starting", properties.TypeBool)
	p.Add(SettingFailCode, "Start code reported when fail_start is set", properties.TypeInt)
	p.Add(SettingCapture, "Media to capture: video, audio or av (empty for all)", properties.TypeText)
	return p
}

func newNullOutput(s *settings.Data, o *output.Output) (output.Sink, error) {
	n := &nullOutput{
		out:    o,
		logger: logging.GetLogger("sinks").With("sink", NullOutputID, "output", o.Name()),
	}
	n.apply(s)

	if err := o.Procs().Add("stats", n.statsProc); err != nil {
		return nil, err
	}
	if err := o.Procs().Add("history", n.historyProc); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *nullOutput) apply(s *settings.Data) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failStart = s.Bool(SettingFailStart)
	n.failCode = int(s.Int(SettingFailCode))
	n.capture = captureFlags(s, n.logger)
	n.maxHist = int(s.Int(SettingHistory))
	if n.maxHist < 0 {
		n.maxHist = 0
	}
	if len(n.history) > n.maxHist {
		n.history = append([]PacketRecord(nil), n.history[len(n.history)-n.maxHist:]...)
	}
}

func (n *nullOutput) Start() bool {
	n.mu.Lock()
	fail, code, flags := n.failStart, n.failCode, n.capture
	n.mu.Unlock()

	if fail {
		// The failure surfaces after Start has returned, like a connect
		// attempt that is refused later.
		n.signals.Add(1)
		go func() {
			defer n.signals.Done()
			n.out.SignalStartFailure(code)
		}()
		return true
	}
	return n.out.BeginDataCapture(flags)
}

func (n *nullOutput) Stop() {
	n.out.EndDataCapture()
}

func (n *nullOutput) Destroy() {
	n.signals.Wait()
	n.mu.Lock()
	stats := n.stats
	n.mu.Unlock()
	n.logger.Debug("Null output destroyed", "packets", stats.Packets, "bytes", stats.Bytes)
}

func (n *nullOutput) Update(s *settings.Data) {
	n.apply(s)
}

// Pause toggles delivery counting.
func (n *nullOutput) Pause() {
	n.mu.Lock()
	n.stats.Paused = !n.stats.Paused
	paused := n.stats.Paused
	n.mu.Unlock()
	n.logger.Info("Null output pause toggled", "paused", paused)
}

func (n *nullOutput) EncodedPacket(pkt *media.Packet) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stats.Paused {
		return
	}

	n.stats.Packets++
	n.stats.Bytes += uint64(len(pkt.Data))
	switch pkt.Type {
	case media.EncoderVideo:
		n.stats.VideoPackets++
		n.stats.LastVideoDTS = pkt.DTS
	case media.EncoderAudio:
		n.stats.AudioPackets++
		n.stats.LastAudioDTS = pkt.DTS
	}

	if n.maxHist == 0 {
		return
	}
	if len(n.history) == n.maxHist {
		copy(n.history, n.history[1:])
		n.history = n.history[:len(n.history)-1]
	}
	n.history = append(n.history, PacketRecord{
		Type:     pkt.Type.String(),
		DTS:      pkt.DTS,
		PTS:      pkt.PTS,
		DTSUsec:  pkt.DTSMicros(),
		Size:     len(pkt.Data),
		Keyframe: pkt.Keyframe,
	})
}

// Stats returns a snapshot of the delivery counters.
func (n *nullOutput) Stats() NullStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// History returns the most recent delivered packets, oldest first.
func (n *nullOutput) History() []PacketRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]PacketRecord(nil), n.history...)
}

func (n *nullOutput) statsProc(_ context.Context, _ procs.Params) (procs.Params, error) {
	s := n.Stats()
	return procs.Params{
		"packets":        s.Packets,
		"bytes":          s.Bytes,
		"video_packets":  s.VideoPackets,
		"audio_packets":  s.AudioPackets,
		"last_video_dts": s.LastVideoDTS,
		"last_audio_dts": s.LastAudioDTS,
		"paused":         s.Paused,
	}, nil
}

func (n *nullOutput) historyProc(_ context.Context, _ procs.Params) (procs.Params, error) {
	return procs.Params{"packets": n.History()}, nil
}
