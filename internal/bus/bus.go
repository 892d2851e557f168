package bus

import (
	"context"
	"encoding/json"
)

// Event is one published message. Frame holds the already encoded outbound
// websocket frame so it is marshalled once per publish, not once per subscriber.
type Event struct {
	NodeID string          `json:"node_id,omitempty"`
	Topic  string          `json:"topic"`
	Type   string          `json:"type"`
	Origin int             `json:"origin,omitempty"`
	Target int             `json:"target,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// NewEvent encodes frame and wraps it for topic.
func NewEvent(topic, eventType string, origin int, frame interface{}) (Event, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return Event{}, err
	}
	return Event{Topic: topic, Type: eventType, Origin: origin, Frame: payload}, nil
}

// Subscription identifies one subscriber on one topic.
type Subscription struct {
	Topic string
	id    uint64
}

// Bus is the publish/subscribe contract shared by the in-process hub and the cluster bridge.
//
// Sinks receive events with a non-blocking send: a full sink loses the event.
// A sink must stay open for as long as it may be subscribed.
type Bus interface {
	Subscribe(topic string, sink chan<- Event) Subscription
	Unsubscribe(sub Subscription)
	Publish(ctx context.Context, ev Event) error
	Subscribers(topic string) int
}
