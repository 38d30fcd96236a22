// Package encoder provides the encoder side of the output core: a named
// producer of compressed packets that fans out to every started receiver
// and keeps a set of linked outputs.
package encoder

import (
	"log/slog"
	"sync"

	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/media"
)

// Receiver consumes packets produced by an encoder. A receiver is identified by
// its value, so implementations must be comparable (pointer receivers are the
// usual choice).
type Receiver interface {
	ReceivePacket(pkt *media.Packet)
}

// OutputLink is the output side of the encoder/output binding. The encoder
// calls RemoveEncoder on every linked output when it is destroyed.
type OutputLink interface {
	RemoveEncoder(enc *Encoder)
}

// Encoder delivers packets to started receivers and tracks linked outputs.
type Encoder struct {
	name   string
	typ    media.EncoderType
	logger *slog.Logger

	mu        sync.RWMutex
	receivers []Receiver
	outputs   []OutputLink
}

// New creates an encoder of the given media type.
func New(name string, typ media.EncoderType) *Encoder {
	return &Encoder{
		name:   name,
		typ:    typ,
		logger: logging.GetLogger("encoder").With("encoder", name),
	}
}

// Name returns the encoder name.
func (e *Encoder) Name() string {
	if e == nil {
		return ""
	}
	return e.name
}

// Type returns the media type the encoder produces.
func (e *Encoder) Type() media.EncoderType {
	if e == nil {
		return 0
	}
	return e.typ
}

// Active reports whether at least one receiver is started.
func (e *Encoder) Active() bool {
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.receivers) > 0
}

// Start begins delivering packets to r. Starting a receiver twice is a no-op.
func (e *Encoder) Start(r Receiver) {
	if e == nil || r == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.receivers {
		if existing == r {
			return
		}
	}
	e.receivers = append(e.receivers, r)
	e.logger.Debug("Receiver started", "receivers", len(e.receivers))
}

// Stop detaches r. Stopping a receiver that was never started is a no-op.
// Once Stop returns, r is not invoked again.
func (e *Encoder) Stop(r Receiver) {
	if e == nil || r == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.receivers {
		if existing == r {
			e.receivers = append(e.receivers[:i], e.receivers[i+1:]...)
			e.logger.Debug("Receiver stopped", "receivers", len(e.receivers))
			return
		}
	}
}

// Send hands pkt to every started receiver. Receivers must not retain pkt or
// its payload after returning.
func (e *Encoder) Send(pkt *media.Packet) {
	if e == nil || pkt == nil {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.receivers {
		r.ReceivePacket(pkt)
	}
}

// AddOutput links an output to this encoder.
func (e *Encoder) AddOutput(o OutputLink) {
	if e == nil || o == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.outputs {
		if existing == o {
			return
		}
	}
	e.outputs = append(e.outputs, o)
}

// RemoveOutput unlinks an output. Unknown outputs are ignored.
func (e *Encoder) RemoveOutput(o OutputLink) {
	if e == nil || o == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.outputs {
		if existing == o {
			e.outputs = append(e.outputs[:i], e.outputs[i+1:]...)
			return
		}
	}
}

// Outputs returns a snapshot of the linked outputs.
func (e *Encoder) Outputs() []OutputLink {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]OutputLink, len(e.outputs))
	copy(out, e.outputs)
	return out
}

// HasOutput reports whether o is linked.
func (e *Encoder) HasOutput(o OutputLink) bool {
	if e == nil || o == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, existing := range e.outputs {
		if existing == o {
			return true
		}
	}
	return false
}

// Destroy unlinks every output and drops all receivers.
func (e *Encoder) Destroy() {
	if e == nil {
		return
	}
	e.mu.Lock()
	outputs := e.outputs
	e.outputs = nil
	e.receivers = nil
	e.mu.Unlock()

	// RemoveEncoder calls back into RemoveOutput, so the lock must be released.
	for _, o := range outputs {
		o.RemoveEncoder(e)
	}
	e.logger.Debug("Encoder destroyed", "outputs", len(outputs))
}
