// Package eventbus provides an in-process publish/subscribe bus used to
// decouple the dispense loop from telemetry and metrics consumers.
package eventbus

import "sync"

// Subscription identifies a subscriber for later removal.
type Subscription int

// Bus is a type-safe fan-out bus for events of type T. Delivery is
// non-blocking: a subscriber that falls behind loses events rather
// than stalling the publisher.
type Bus[T any] struct {
	mu     sync.RWMutex
	next   Subscription
	subs   map[Subscription]chan T
	closed bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[Subscription]chan T)}
}

// Publish delivers e to every subscriber whose buffer has room.
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber with a buffered channel.
func (b *Bus[T]) Subscribe() (Subscription, <-chan T) {
	ch := make(chan T, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return -1, ch
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	if !b.closed {
		close(ch)
	}
}

// Close closes every subscriber channel and rejects further publishes.
func (b *Bus[T]) Close() {
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
