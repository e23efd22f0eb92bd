package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"nftmarket/core/types"
)

const streamHistoryLimit = 2048

// Record is a committed event stamped with its position in the stream.
type Record struct {
	Sequence  uint64       `json:"sequence"`
	Cursor    string       `json:"cursor"`
	Timestamp int64        `json:"timestamp"`
	Event     *types.Event `json:"event"`
}

func cloneRecord(rec Record) Record {
	cloned := rec
	if rec.Event != nil {
		attrs := make(map[string]string, len(rec.Event.Attributes))
		for k, v := range rec.Event.Attributes {
			attrs[k] = v
		}
		cloned.Event = &types.Event{Type: rec.Event.Type, Attributes: attrs}
	}
	return cloned
}

// Broker fans committed events out to live subscribers and keeps a bounded
// history so late subscribers can resume from a cursor.
type Broker struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan Record
	history []Record
	nowFn   func() time.Time
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]chan Record), nowFn: time.Now}
}

// Emit implements Emitter.
func (b *Broker) Emit(evt Event) {
	rendered := Render(evt)
	if b == nil || rendered == nil {
		return
	}

	b.mu.Lock()
	b.seq++
	rec := Record{
		Sequence:  b.seq,
		Cursor:    strconv.FormatUint(b.seq, 10),
		Timestamp: b.nowFn().Unix(),
		Event:     rendered,
	}
	b.history = append(b.history, cloneRecord(rec))
	if len(b.history) > streamHistoryLimit {
		excess := len(b.history) - streamHistoryLimit
		trimmed := make([]Record, streamHistoryLimit)
		copy(trimmed, b.history[excess:])
		b.history = trimmed
	}
	// Sends stay under the lock so cancel cannot close a channel mid-send.
	for _, ch := range b.subs {
		select {
		case ch <- cloneRecord(rec):
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribe registers a subscriber for records after the supplied cursor. The
// returned backlog holds retained history newer than the cursor.
func (b *Broker) Subscribe(ctx context.Context, cursor string) (<-chan Record, func(), []Record, error) {
	if b == nil {
		return nil, nil, nil, fmt.Errorf("events: broker not initialised")
	}
	updates := make(chan Record, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("events: invalid cursor %q", trimmed)
		}
		since = parsed
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = updates
	backlog := make([]Record, 0, len(b.history))
	for _, entry := range b.history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneRecord(entry))
		}
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog, nil
}

// Buffer collects events while a transition is in flight. Flush forwards them
// once the transition has committed; Reset drops them when it reverted.
type Buffer struct {
	pending []Event
}

// Emit implements Emitter.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int { return len(b.pending) }

// Events returns the buffered events without clearing them.
func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush forwards buffered events to dst in emission order.
func (b *Buffer) Flush(dst Emitter) {
	pending := b.pending
	b.pending = nil
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Truncate drops every event buffered after the first n.
func (b *Buffer) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(b.pending) {
		b.pending = b.pending[:n]
	}
}

// Reset discards buffered events.
func (b *Buffer) Reset() { b.pending = nil }

// Multi fans a single emission out to several emitters.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
