package output

import (
	"sync"

	"github.com/smazurov/mediaout/internal/media"
)

type pendingPacket struct {
	pkt *media.Packet
	ts  int64 // microseconds, from the offset-adjusted DTS
}

// interleaver merges an encoded video and an encoded audio stream into one
// sequence ordered by DTS, rebased so the first video packet is at zero.
// Audio older than the first video packet is dropped. Once both streams have
// been seen, every incoming packet releases exactly one buffered packet.
//
// All state is guarded by mu, which is held for a whole push, delivery
// included.
type interleaver struct {
	deliver func(pkt *media.Packet)
	metrics *outputMetrics

	mu            sync.Mutex
	receivedVideo bool
	receivedAudio bool
	firstVideoTS  int64
	videoOffset   int64
	audioOffset   int64
	buf           []pendingPacket
}

func newInterleaver(deliver func(pkt *media.Packet), metrics *outputMetrics) *interleaver {
	return &interleaver{deliver: deliver, metrics: metrics}
}

// ReceivePacket makes the interleaver an encoder receiver.
func (il *interleaver) ReceivePacket(pkt *media.Packet) {
	il.push(pkt)
}

func (il *interleaver) push(pkt *media.Packet) {
	il.mu.Lock()
	defer il.mu.Unlock()

	ts := pkt.DTSMicros()

	var offset int64
	switch pkt.Type {
	case media.EncoderVideo:
		if !il.receivedVideo {
			il.firstVideoTS = ts
			il.videoOffset = pkt.DTS
			il.receivedVideo = true
		}
		offset = il.videoOffset
	case media.EncoderAudio:
		// Nothing is allocated on this path.
		if !il.receivedVideo || ts < il.firstVideoTS {
			il.metrics.audioDropped.Inc()
			return
		}
		if !il.receivedAudio {
			il.audioOffset = pkt.DTS
			il.receivedAudio = true
		}
		offset = il.audioOffset
	default:
		return
	}

	out := pkt.Duplicate()
	out.DTS -= offset
	out.PTS -= offset
	il.insert(pendingPacket{pkt: out, ts: out.DTSMicros()})

	if il.receivedVideo && il.receivedAudio {
		il.releaseFront()
	}
	il.metrics.bufferDepth.Set(float64(len(il.buf)))
}

// insert places p before the first entry with a strictly greater timestamp.
func (il *interleaver) insert(p pendingPacket) {
	idx := len(il.buf)
	for i := range il.buf {
		if il.buf[i].ts > p.ts {
			idx = i
			break
		}
	}
	il.buf = append(il.buf, pendingPacket{})
	copy(il.buf[idx+1:], il.buf[idx:])
	il.buf[idx] = p
}

func (il *interleaver) releaseFront() {
	if len(il.buf) == 0 {
		return
	}
	front := il.buf[0]
	copy(il.buf, il.buf[1:])
	il.buf[len(il.buf)-1] = pendingPacket{}
	il.buf = il.buf[:len(il.buf)-1]

	il.deliver(front.pkt)
	front.pkt.Free()
}

// reset forgets which streams have been seen. Called when capture begins.
func (il *interleaver) reset() {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.receivedVideo = false
	il.receivedAudio = false
}

// clear frees every buffered packet.
func (il *interleaver) clear() {
	il.mu.Lock()
	defer il.mu.Unlock()
	for i := range il.buf {
		il.buf[i].pkt.Free()
		il.buf[i] = pendingPacket{}
	}
	il.buf = il.buf[:0]
	il.metrics.bufferDepth.Set(0)
}

// Len returns the number of buffered packets.
func (il *interleaver) Len() int {
	il.mu.Lock()
	defer il.mu.Unlock()
	return len(il.buf)
}
