package bus

import (
	"context"
	"sync"
)

type subscription struct {
	topic   Topic
	handler Handler
}

// MemoryBus is an in-process bus. Publish calls handlers synchronously, in
// subscription order.
type MemoryBus struct {
	mu       sync.RWMutex
	sessions map[string][]*subscription
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{sessions: make(map[string][]*subscription)}
}

// Publish delivers payload to every subscriber of topic in session
func (b *MemoryBus) Publish(_ context.Context, session string, topic Topic, payload string) error {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.sessions[session]))
	for _, s := range b.sessions[session] {
		if s.topic == topic {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	evt := Event{Session: session, Topic: topic, Payload: payload}
	for _, s := range subs {
		s.handler(evt)
	}
	return nil
}

// Subscribe registers h for topic in session
func (b *MemoryBus) Subscribe(session string, topic Topic, h Handler) (func(), error) {
	sub := &subscription{topic: topic, handler: h}

	b.mu.Lock()
	b.sessions[session] = append(b.sessions[session], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(session, sub) })
	}, nil
}

func (b *MemoryBus) remove(session string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.sessions[session]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.sessions, session)
		return
	}
	b.sessions[session] = subs
}

// Close drops all subscriptions
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.sessions = make(map[string][]*subscription)
	b.mu.Unlock()
	return nil
}
