package ws

import (
	"time"

	"teams-chat/internal/observability"
)

// ConnInfo describes one websocket connection for logs and ws_events.
type ConnInfo struct {
	ConnID      string
	Kind        string
	Resource    string
	UserID      int
	Username    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) event(name, reason string) observability.WSEvent {
	return observability.WSEvent{
		Kind:        i.Kind,
		Resource:    i.Resource,
		Event:       name,
		ConnID:      i.ConnID,
		ConnectedAt: i.ConnectedAt,
		Reason:      reason,
		UserID:      i.UserID,
		DeviceID:    i.DeviceID,
		IP:          i.IP,
	}
}

func (i ConnInfo) headers() map[string]string {
	return observability.BuildHeaders(i.RequestID, i.TraceID)
}
