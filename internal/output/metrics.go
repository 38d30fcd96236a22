package output

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Per-output delivery counters.
	outputPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaout",
		Subsystem: "output",
		Name:      "packets_total",
		Help:      "Encoded packets delivered to the sink per output",
	}, []string{"output", "id"})

	outputBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaout",
		Subsystem: "output",
		Name:      "bytes_total",
		Help:      "Encoded payload bytes delivered to the sink per output",
	}, []string{"output", "id"})

	outputAudioDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaout",
		Subsystem: "output",
		Name:      "audio_dropped_total",
		Help:      "Audio packets discarded because they precede the first video packet",
	}, []string{"output", "id"})

	// Interleave buffer depth after each packet.
	outputBufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mediaout",
		Subsystem: "output",
		Name:      "interleave_buffer_packets",
		Help:      "Packets waiting in the interleave buffer",
	}, []string{"output", "id"})

	outputActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mediaout",
		Subsystem: "output",
		Name:      "active",
		Help:      "1 while the output is capturing data",
	}, []string{"output", "id"})

	outputStartSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaout",
		Subsystem: "output",
		Name:      "start_signals_total",
		Help:      "Start signals emitted per output and result code",
	}, []string{"output", "id", "code"})
)

// outputMetrics caches one output's series so the packet path does no label
// lookups. Series carry the instance ID next to the name because names are
// not unique.
type outputMetrics struct {
	name         string
	id           string
	packets      prometheus.Counter
	bytes        prometheus.Counter
	audioDropped prometheus.Counter
	bufferDepth  prometheus.Gauge
	active       prometheus.Gauge

	mu      sync.Mutex
	deleted bool
}

func newOutputMetrics(name, id string) *outputMetrics {
	return &outputMetrics{
		name:         name,
		id:           id,
		packets:      outputPackets.WithLabelValues(name, id),
		bytes:        outputBytes.WithLabelValues(name, id),
		audioDropped: outputAudioDropped.WithLabelValues(name, id),
		bufferDepth:  outputBufferDepth.WithLabelValues(name, id),
		active:       outputActive.WithLabelValues(name, id),
	}
}

// IncrementPacketsSent records one packet handed to the sink.
func (m *outputMetrics) IncrementPacketsSent(bytes int) {
	m.packets.Inc()
	m.bytes.Add(float64(bytes))
}

// SetActive records the capture state.
func (m *outputMetrics) SetActive(active bool) {
	if active {
		m.active.Set(1)
	} else {
		m.active.Set(0)
	}
}

// IncrementStartSignals records a start signal with its code. Signals that
// arrive after delete are not counted, so a late asynchronous failure cannot
// bring the output's series back.
func (m *outputMetrics) IncrementStartSignals(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted {
		return
	}
	outputStartSignals.WithLabelValues(m.name, m.id, strconv.Itoa(code)).Inc()
}

// delete drops the output's series.
func (m *outputMetrics) delete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = true
	outputPackets.DeleteLabelValues(m.name, m.id)
	outputBytes.DeleteLabelValues(m.name, m.id)
	outputAudioDropped.DeleteLabelValues(m.name, m.id)
	outputBufferDepth.DeleteLabelValues(m.name, m.id)
	outputActive.DeleteLabelValues(m.name, m.id)
	outputStartSignals.DeletePartialMatch(prometheus.Labels{"id": m.id})
}
