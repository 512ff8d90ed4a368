// Package bus provides the in-process publish/subscribe channel shared by
// the notification and task live topics. It deliberately offers the weakest
// guarantee level: no persistence, no replay, at-most-once delivery to
// subscribers that are connected at publish time. The durable source of
// truth is the notification store; the bus only gives already-connected
// clients low-latency updates. It does not fan out across processes, so
// horizontally scaled deployments do not see each other's live events.
package bus

import (
	"sync"

	"github.com/rs/zerolog"
)

// Topic names shared by publishers and subscribers.
const (
	TopicNotifications = "notifications"
	TopicTasks         = "tasks"
)

// subscriberBuffer bounds how far one slow subscriber may lag before its
// events are dropped. A full buffer never blocks Publish, so one broken
// listener cannot stall fan-out to the others.
const subscriberBuffer = 64

type subscriber struct {
	ch chan interface{}
}

// Bus is a topic-keyed in-process event bus. Construct one per process in
// main and inject it; there is no package-level instance.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*subscriber
	nextID uint64
	closed bool
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Bus {
	return &Bus{
		topics: make(map[string]map[uint64]*subscriber),
		logger: logger.With().Str("component", "event_bus").Logger(),
	}
}

// Publish hands payload to every current subscriber of topic. Subscribers
// whose buffer is full are skipped; they recover missed state from the
// store on reconnect.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, sub := range b.topics[topic] {
		select {
		case sub.ch <- payload:
		default:
			b.logger.Warn().
				Str("topic", topic).
				Uint64("subscriber_id", id).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// Subscribe registers a listener on topic and returns the delivery channel
// together with a cancel function. Cancelling unsubscribes and closes the
// channel; events published before Subscribe are never delivered.
func (b *Bus) Subscribe(topic string) (<-chan interface{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan interface{}, subscriberBuffer)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	b.nextID++
	id := b.nextID
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]*subscriber)
	}
	b.topics[topic][id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.topics[topic]; ok {
				if _, live := subs[id]; live {
					delete(subs, id)
					close(sub.ch)
				}
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
		})
	}
	return sub.ch, cancel
}

// SubscriberCount reports the number of live subscribers on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close tears the bus down at shutdown: every subscriber channel is closed
// and subsequent publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.topics {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(b.topics, topic)
	}
}
