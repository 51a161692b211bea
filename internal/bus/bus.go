// Package bus is an in-process publish/subscribe event bus.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus fans events out to subscribers by kind prefix. Publish never blocks:
// an event is dropped for a subscriber whose buffer is full, and counted.
// A nil *Bus accepts publishes and drops them.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	seq     uint64
	dropped atomic.Uint64
}

type subscription struct {
	prefix string
	ch     chan Event
}

func (s *subscription) matches(kind string) bool {
	return strings.HasPrefix(kind, s.prefix)
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// A zero Timestamp is set to now.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.matches(evt.Kind) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Emit publishes kind with payload.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Payload: payload})
}

// Subscribe registers a buffered channel for kinds starting with prefix;
// "" receives everything. The returned cancel func is idempotent and does
// not close the channel.
func (b *Bus) Subscribe(prefix string, buf int) (<-chan Event, func()) {
	s := &subscription{prefix: prefix, ch: make(chan Event, buf)}
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
