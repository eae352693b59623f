package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "beacons:session:"

// RedisBus fans session events out over Redis pub/sub to every instance that
// subscribed the session. Panels and their session cache stay in the process
// that opened them, so a load balancer must keep a session on one instance
// (sticky sessions). Each session uses one channel, which keeps cross-topic
// publish order.
type RedisBus struct {
	client *redis.Client

	mu       sync.Mutex
	sessions map[string]*redisSession
}

type redisSession struct {
	pubsub *redis.PubSub
	subs   []*subscription
	done   chan struct{}
}

// NewRedisBus creates a bus on top of an existing client
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, sessions: make(map[string]*redisSession)}
}

func channel(session string) string {
	return channelPrefix + session
}

// Publish sends payload on the session's channel
func (b *RedisBus) Publish(ctx context.Context, session string, topic Topic, payload string) error {
	msg, err := json.Marshal(Event{Session: session, Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode bus event: %w", err)
	}
	if err := b.client.Publish(ctx, channel(session), msg).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers h for topic in session, opening the session's channel on first use
func (b *RedisBus) Subscribe(session string, topic Topic, h Handler) (func(), error) {
	sub := &subscription{topic: topic, handler: h}

	b.mu.Lock()
	rs, ok := b.sessions[session]
	if !ok {
		ctx := context.Background()
		ps := b.client.Subscribe(ctx, channel(session))
		// wait for the subscription to be confirmed so no publish is missed
		if _, err := ps.Receive(ctx); err != nil {
			b.mu.Unlock()
			ps.Close()
			return nil, fmt.Errorf("failed to subscribe session %s: %w", session, err)
		}
		rs = &redisSession{pubsub: ps, done: make(chan struct{})}
		b.sessions[session] = rs
		go b.listen(session, rs)
	}
	rs.subs = append(rs.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(session, sub) })
	}, nil
}

func (b *RedisBus) listen(session string, rs *redisSession) {
	defer close(rs.done)
	for msg := range rs.pubsub.Channel() {
		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			log.Warn().Str("component", "bus").Str("session", session).Err(err).Msg("dropping undecodable bus message")
			continue
		}

		b.mu.Lock()
		var handlers []Handler
		for _, s := range rs.subs {
			if s.topic == evt.Topic {
				handlers = append(handlers, s.handler)
			}
		}
		b.mu.Unlock()

		for _, h := range handlers {
			h(evt)
		}
	}
}

func (b *RedisBus) remove(session string, sub *subscription) {
	b.mu.Lock()
	rs, ok := b.sessions[session]
	if !ok {
		b.mu.Unlock()
		return
	}
	for i, s := range rs.subs {
		if s == sub {
			rs.subs = append(rs.subs[:i:i], rs.subs[i+1:]...)
			break
		}
	}
	if len(rs.subs) > 0 {
		b.mu.Unlock()
		return
	}
	delete(b.sessions, session)
	b.mu.Unlock()

	rs.pubsub.Close()
	<-rs.done
}

// Close unsubscribes every session channel
func (b *RedisBus) Close() error {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*redisSession)
	b.mu.Unlock()

	for _, rs := range sessions {
		rs.pubsub.Close()
		<-rs.done
	}
	return nil
}
