package monitor

import (
	"sync"

	"eventmon/pkg/events"
)

// Buffer is a bounded FIFO of the most recent events. When full, a push
// evicts the oldest entry.
type Buffer struct {
	mu  sync.Mutex
	cap int
	evs []*events.MonitoredEvent
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Buffer{cap: capacity}
}

func (b *Buffer) Push(ev *events.MonitoredEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.evs) >= b.cap {
		b.evs = b.evs[1:]
	}
	b.evs = append(b.evs, ev)
}

// Recent returns up to n of the newest events, oldest first.
func (b *Buffer) Recent(n int) []*events.MonitoredEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.evs) {
		n = len(b.evs)
	}
	out := make([]*events.MonitoredEvent, n)
	copy(out, b.evs[len(b.evs)-n:])
	return out
}

// Snapshot returns a copy of the whole buffer, oldest first.
func (b *Buffer) Snapshot() []*events.MonitoredEvent {
	return b.Recent(0)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.evs)
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evs = nil
}
