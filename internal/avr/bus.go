package avr

import (
	"log"
	"sync"
)

// Bus is a synchronous multicast dispatcher for decoded events. Publish runs
// every subscriber callback inline, in subscription order, on the publishing
// goroutine. There is no queueing or async handoff.
//
// Subscribe and Cancel are safe to call concurrently with an in-flight
// Publish; membership changes take effect on the next publish.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Subscription identifies one registered callback and can revoke it.
type Subscription struct {
	fn  func(Event)
	bus *Bus
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn to receive every subsequent publish.
func (b *Bus) Subscribe(fn func(Event)) *Subscription {
	s := &Subscription{fn: fn, bus: b}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Cancel removes the subscription. A publish already iterating its snapshot
// may still deliver one final event.
func (s *Subscription) Cancel() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current subscriber in registration order.
// A panicking subscriber is logged and skipped; the remaining subscribers
// still receive the event.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	snapshot := make([]*Subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		dispatch(s, ev)
	}
}

func dispatch(s *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] subscriber panic on %s/%s: %v", ev.Zone, ev.Prop, r)
		}
	}()
	s.fn(ev)
}
