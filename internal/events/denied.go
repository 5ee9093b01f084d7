// Package events provides the process-wide permission-error channel.
//
// When the store rejects a business write, the owning service publishes one
// structured DeniedWrite event here. A UI-layer subscriber decides how to
// surface it. Publishing is fire-and-forget: at most one event per failed
// write, no replay buffer, and a slow subscriber drops events rather than
// blocking the publisher.
package events

import (
	"sync"
	"time"
)

// DeniedWrite carries the structured context of a rejected store write.
type DeniedWrite struct {
	// Path identifies the record the write targeted, e.g. "claims/<id>".
	Path string `json:"path"`
	// Operation is the attempted operation kind, e.g. "create", "transition".
	Operation string `json:"operation"`
	// Payload is the request payload the write carried.
	Payload map[string]any `json:"payload,omitempty"`
	// Error is the store's rejection message.
	Error string `json:"error"`
	// OccurredAt is when the rejection was observed.
	OccurredAt time.Time `json:"occurred_at"`
}

// DeniedWrites is a publish/subscribe point for DeniedWrite events.
type DeniedWrites struct {
	mu   sync.RWMutex
	subs map[int]chan DeniedWrite
	next int
}

// NewDeniedWrites creates a new denied-write bus.
func NewDeniedWrites() *DeniedWrites {
	return &DeniedWrites{
		subs: make(map[int]chan DeniedWrite),
	}
}

// Subscribe registers a listener. The returned cancel function removes the
// subscription and closes the channel.
func (b *DeniedWrites) Subscribe() (<-chan DeniedWrite, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan DeniedWrite, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to all subscribers without blocking. Events to
// subscribers with a full buffer are dropped.
func (b *DeniedWrites) Publish(ev DeniedWrite) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
