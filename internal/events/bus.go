package events

import "sync"

// Bus queues events from any number of producers for a single consumer.
// The queue is unbounded so a slow consumer never blocks a producer.
type Bus struct {
	mu    sync.Mutex
	queue []Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish appends ev to the queue.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
}

// Drain returns all queued events in publish order and empties the queue.
// It never blocks; an empty queue yields nil.
func (b *Bus) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	out := b.queue
	b.queue = nil
	return out
}

// Len reports how many events are waiting.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
