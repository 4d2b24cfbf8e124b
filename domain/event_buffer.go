package domain

import (
	"reflect"
	"slices"
	"sync"
)

// EventBuffer holds events until a caller drains them. The zero value keeps
// everything; NewEventBuffer caps the backlog and evicts the oldest entry
// once the cap is reached. Safe for concurrent use.
type EventBuffer struct {
	mu      sync.Mutex
	limit   int
	events  []Event
	dropped uint64
}

// NewEventBuffer returns a buffer holding at most limit events. A limit
// below one means no cap.
func NewEventBuffer(limit int) *EventBuffer {
	if limit < 0 {
		limit = 0
	}
	return &EventBuffer{limit: limit}
}

func (b *EventBuffer) Record(e Event) {
	if isNilEvent(e) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && len(b.events) >= b.limit {
		b.events = b.events[1:]
		b.dropped++
	}
	b.events = append(b.events, e)
}

// Peek copies the backlog without draining it.
func (b *EventBuffer) Peek() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}

// Pull drains the backlog, oldest first. It returns nil when empty.
func (b *EventBuffer) Pull() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped counts events evicted by the cap since the buffer was created.
func (b *EventBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// isNilEvent also catches typed nil pointers stored in the interface.
func isNilEvent(e Event) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
