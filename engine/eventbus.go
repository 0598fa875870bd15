package engine

import (
	"sync"
	"time"
)

// SubscriberID identifies a subscription so it can be removed.
type SubscriberID int

type subscriber struct {
	fn    func(Event)
	types map[EventType]bool // nil = all types
}

// EventBus fans engine events out to subscribers. Emit calls subscribers
// synchronously on the emitting goroutine.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[SubscriberID]subscriber
	nextID SubscriberID
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[SubscriberID]subscriber)}
}

// Subscribe registers fn for every event type.
func (b *EventBus) Subscribe(fn func(Event)) SubscriberID {
	return b.add(subscriber{fn: fn})
}

// SubscribeTypes registers fn for the listed event types only.
func (b *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return b.add(subscriber{fn: fn, types: set})
}

func (b *EventBus) add(s subscriber) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = s
	return b.nextID
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *EventBus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Emit stamps the event and delivers it.
func (b *EventBus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]func(Event), 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil || s.types[e.Type] {
			targets = append(targets, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(e)
	}
}
