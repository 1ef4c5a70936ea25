package bus

import (
	"sync"
	"sync/atomic"
)

// Topic names for the in-process message bus.
const (
	// TopicFrameRaw carries raw broker payloads before decoding.
	TopicFrameRaw = "frame.raw"

	// TopicFrameDecoded carries intermediate-form frames from the decoders.
	TopicFrameDecoded = "frame.decoded"

	// TopicEventNormalized carries finished events bound for persistence
	// and the push stream.
	TopicEventNormalized = "event.normalized"

	// TopicCommandRequest carries outbound command requests to the builder.
	TopicCommandRequest = "command.request"

	// TopicError carries structured error notices from any stage.
	TopicError = "error"
)

// Message is a single item delivered to subscribers.
type Message struct {
	Topic   string
	Payload any
}

// Subscription is a registered receiver on one topic.
//
// Messages are delivered on C. When the subscriber cannot keep up the
// bus drops the message rather than blocking the publisher; drops are
// counted and visible through Bus.Drops.
type Subscription struct {
	// C delivers published messages.
	C <-chan Message

	name  string
	topic string
	ch    chan Message
	drops atomic.Uint64
}

// Name returns the subscriber name given at registration.
func (s *Subscription) Name() string { return s.name }

// Drops returns how many messages were discarded because this
// subscriber's inbox was full.
func (s *Subscription) Drops() uint64 { return s.drops.Load() }

// Bus is an in-process publish/subscribe fan-out.
//
// Publishing never blocks: each subscriber has its own buffered inbox
// and a full inbox means the message is dropped for that subscriber
// only. This keeps a slow persistence writer from stalling the decode
// path.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe registers a named receiver on a topic.
//
// Parameters:
//   - name: Subscriber name, used in drop accounting
//   - topic: One of the Topic* constants
//   - buffer: Inbox capacity; messages beyond it are dropped
//
// Returns:
//   - *Subscription: Receiver handle; read from its C channel
func (b *Bus) Subscribe(name, topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}

	ch := make(chan Message, buffer)
	sub := &Subscription{
		C:     ch,
		name:  name,
		topic: topic,
		ch:    ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return sub
	}

	b.subs[topic] = append(b.subs[topic], sub)
	return sub
}

// Publish delivers a payload to every subscriber of the topic.
//
// Never blocks. Subscribers whose inbox is full miss the message and
// have their drop counter incremented.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	msg := Message{Topic: topic, Payload: payload}
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- msg:
		default:
			sub.drops.Add(1)
		}
	}
}

// Drops reports the per-subscriber drop counts, keyed "topic/name".
func (b *Bus) Drops() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]uint64)
	for topic, subs := range b.subs {
		for _, sub := range subs {
			out[topic+"/"+sub.name] = sub.Drops()
		}
	}
	return out
}

// Close shuts the bus down and closes every subscriber channel.
// Publish becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subs = make(map[string][]*Subscription)
}
