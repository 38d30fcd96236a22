package logging

import (
	"sync"
	"time"
)

// LogEntry is one buffered log record. Seq increases by one per entry and
// never repeats within a process, so stream clients can resume after a gap.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Query selects entries from a RingBuffer.
type Query struct {
	// Module keeps only entries from this module when set.
	Module string
	// After keeps only entries with Seq greater than this.
	After uint64
	// Tail keeps the newest matching entries; 0 keeps all.
	Tail int
}

func (q Query) match(e *LogEntry) bool {
	if e.Seq <= q.After {
		return false
	}
	return q.Module == "" || e.Module == q.Module
}

// RingBuffer keeps the most recent log entries in memory.
type RingBuffer struct {
	mu   sync.RWMutex
	ring []LogEntry
	next int // slot the next write lands in
	full bool
	seq  uint64
}

// NewRingBuffer creates a buffer holding up to size entries.
// Non-positive sizes fall back to the default capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &RingBuffer{ring: make([]LogEntry, size)}
}

// Write stores entry, evicting the oldest one when full, and returns the
// entry as stored with its sequence number assigned.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	entry.Seq = rb.seq
	rb.ring[rb.next] = entry
	rb.next++
	if rb.next == len(rb.ring) {
		rb.next = 0
		rb.full = true
	}
	return entry
}

// Count returns the number of entries held.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.ring)
	}
	return rb.next
}

// ReadAll returns every held entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Select(Query{})
}

// Tail returns at most the n newest entries, oldest first. n <= 0 returns all.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	return rb.Select(Query{Tail: n})
}

// Select returns the entries matching q, oldest first. Tail is applied after
// filtering, so it counts matching entries only.
func (rb *RingBuffer) Select(q Query) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []LogEntry
	visit := func(part []LogEntry) {
		for i := range part {
			if q.match(&part[i]) {
				out = append(out, part[i])
			}
		}
	}
	if rb.full {
		visit(rb.ring[rb.next:])
	}
	visit(rb.ring[:rb.next])

	if q.Tail > 0 && len(out) > q.Tail {
		out = out[len(out)-q.Tail:]
	}
	return out
}
