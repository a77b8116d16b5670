package service

import "sync"

// Event is a state change. Snapshot is the state after the change.
type Event struct {
	Action   string // "example", "style", "layers", "loading", "layer-control"
	Snapshot Snapshot
}

// Bus is a fan-out pub/sub. Slow subscribers miss events rather than block
// the publisher; every event carries the full snapshot, so the next one
// catches them up.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[chan T]struct{}
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[chan T]struct{})}
}

func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel that receives events until
// Unsubscribe.
func (b *Bus[T]) Subscribe() chan T {
	ch := make(chan T, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
