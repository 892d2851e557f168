package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"teams-chat/internal/observability"
)

// Hub is the in-process bus: a concurrent map of topic to subscriber sinks.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]chan<- Event
	nextID atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[uint64]chan<- Event)}
}

// Subscribe registers sink on topic.
func (h *Hub) Subscribe(topic string, sink chan<- Event) Subscription {
	id := h.nextID.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uint64]chan<- Event)
		h.topics[topic] = subs
	}
	subs[id] = sink
	return Subscription{Topic: topic, id: id}
}

// Unsubscribe removes a subscription. Removing twice is a no-op.
func (h *Hub) Unsubscribe(sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[sub.Topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(h.topics, sub.Topic)
		}
	}
}

// Publish delivers ev to the current subscribers of its topic.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.deliver(ev)
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) deliver(ev Event) int {
	h.mu.RLock()
	subs := h.topics[ev.Topic]
	sinks := make([]chan<- Event, 0, len(subs))
	for _, sink := range subs {
		sinks = append(sinks, sink)
	}
	h.mu.RUnlock()

	kind := TopicKind(ev.Topic)
	observability.IncBusPublished(kind)

	delivered := 0
	for _, sink := range sinks {
		select {
		case sink <- ev:
			delivered++
		default:
			observability.IncBusDropped(kind)
			glog.Warningf("bus: dropped %s event on %s: subscriber buffer full", ev.Type, ev.Topic)
		}
	}
	return delivered
}

var _ Bus = (*Hub)(nil)
