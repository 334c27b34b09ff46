package signal

import (
	"sync"

	"vigil/internal/logging"
)

// DefaultCapacity is the default ring buffer size for the bus.
const DefaultCapacity = 100

// Bus is a fixed-capacity ring buffer of signals. The oldest signal is
// evicted strictly by arrival order when the buffer is full - never by
// relevance. All methods are safe for concurrent use, though in practice
// mutation is serialized through the engine loop.
type Bus struct {
	mu    sync.RWMutex
	buf   []Signal
	start int // index of oldest element
	count int
}

// NewBus creates a bus with the given capacity. Capacity <= 0 falls back to
// DefaultCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{buf: make([]Signal, capacity)}
}

// Ingest appends a signal, evicting the oldest when full. Signals with an
// empty kind are dropped; anything else is stored as-is, malformed or not -
// policy interpretation is the quorum engine's job.
func (b *Bus) Ingest(s Signal) {
	if s.Kind == "" {
		logging.SignalsDebug("dropped signal with empty kind")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < len(b.buf) {
		b.buf[(b.start+b.count)%len(b.buf)] = s
		b.count++
	} else {
		// Full: overwrite oldest and advance.
		b.buf[b.start] = s
		b.start = (b.start + 1) % len(b.buf)
	}
	logging.SignalsDebug("ingested %s signal (severity=%s), buffer %d/%d",
		s.Kind, s.Severity, b.count, len(b.buf))
}

// Recent returns up to the last n signals, most-recent-last.
func (b *Bus) Recent(n int) []Signal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Signal, n)
	for i := 0; i < n; i++ {
		out[i] = b.buf[(b.start+b.count-n+i)%len(b.buf)]
	}
	return out
}

// Snapshot returns the full ordered contents, oldest-first. Used by
// window-scoped quorum predicates, which must treat the result as read-only.
func (b *Bus) Snapshot() []Signal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Signal, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.start+i)%len(b.buf)]
	}
	return out
}

// Len returns the number of stored signals.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *Bus) Cap() int {
	return len(b.buf)
}
