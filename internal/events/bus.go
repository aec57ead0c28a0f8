package events

import (
	"sync"

	"github.com/tilawa-app/tilawa/internal/utils"
)

// Bus fans published messages out to subscribers. A subscriber whose buffer
// is full misses the message rather than blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan any
	nextID int
	closed bool
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan any)}
}

// Subscribe returns a channel of messages and a function that detaches it.
func (b *Bus) Subscribe(buffer int) (<-chan any, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan any, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers msg to every subscriber without blocking.
func (b *Bus) Publish(msg any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			utils.Debug("events: subscriber %d full, dropped %s", id, Type(msg))
		}
	}
}

// Close detaches and closes every subscriber.
func (b *Bus) Close() {
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
