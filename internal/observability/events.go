package observability

import "time"

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSEvent is one websocket lifecycle event (ws_connect, ws_disconnect, ws_error).
type WSEvent struct {
	Kind        string
	Resource    string
	Event       string
	ConnID      string
	ConnectedAt time.Time
	Reason      string
	UserID      int
	DeviceID    string
	IP          string
}

// WSRoutingKey is the routing key for websocket events of a handler kind.
func WSRoutingKey(kind string) string {
	return "ws_events." + kind
}

// Envelope renders the event in the ws_events schema.
func (e WSEvent) Envelope() EventEnvelope {
	var duration int64
	if !e.ConnectedAt.IsZero() && e.Event != "ws_connect" {
		duration = time.Since(e.ConnectedAt).Milliseconds()
	}
	return EventEnvelope{
		EventType: "ws_events",
		EventName: e.Event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        e.Kind,
				"resource_id": e.Resource,
				"event":       e.Event,
				"conn_id":     e.ConnID,
				"duration_ms": duration,
				"reason":      e.Reason,
			},
			"identity": map[string]interface{}{
				"user_id":   e.UserID,
				"device_id": e.DeviceID,
				"ip":        e.IP,
			},
		},
	}
}
