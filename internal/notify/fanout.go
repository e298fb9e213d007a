package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the per-subscriber channel capacity. Publish is
// fire-and-forget: a subscriber that falls this far behind loses messages.
const subscriberBuffer = 64

// Message is one published notification
type Message struct {
	Topic   string
	Payload interface{}
}

// Fanout is the publish/subscribe channel the coordinator announces state
// changes through. At-least-once toward live subscribers; no acknowledgement
// is consumed.
type Fanout struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Message]struct{} // topic -> subscriber set
	logger zerolog.Logger
}

// NewFanout creates a new Fanout
func NewFanout(logger zerolog.Logger) *Fanout {
	return &Fanout{
		subs:   make(map[string]map[chan Message]struct{}),
		logger: logger.With().Str("component", "fanout").Logger(),
	}
}

// Subscribe registers interest in the given topics. The returned cancel
// function removes the subscription and closes the channel.
func (f *Fanout) Subscribe(topics ...string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	f.mu.Lock()
	for _, topic := range topics {
		if f.subs[topic] == nil {
			f.subs[topic] = make(map[chan Message]struct{})
		}
		f.subs[topic][ch] = struct{}{}
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		for _, topic := range topics {
			delete(f.subs[topic], ch)
		}
		f.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish delivers payload to every subscriber of topic without blocking.
// Slow subscribers are skipped.
func (f *Fanout) Publish(topic string, payload interface{}) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch := range f.subs[topic] {
		select {
		case ch <- Message{Topic: topic, Payload: payload}:
		default:
			f.logger.Warn().Str("topic", topic).Msg("dropping notification for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic
func (f *Fanout) SubscriberCount(topic string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[topic])
}
