package cache

import (
	"sync"

	"github.com/tiercache/tiercache/pkg/types"
)

// eventBus fans cache events out to subscriber channels. Delivery is
// fire-and-forget: a subscriber whose channel is full misses the event.
// Ordering across event kinds is not guaranteed.
type eventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan types.Event
	nextID int
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan types.Event)}
}

// subscribe returns a channel of capacity buffer and a cancel function.
// Cancel closes the channel; subscribers must stop reading after calling
// it.
func (b *eventBus) subscribe(buffer int) (<-chan types.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan types.Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan types.Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// publish delivers to every subscriber without blocking.
func (b *eventBus) publish(ev types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
