package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/golang/glog"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit_log envelopes for security relevant chat events
// (refused direct messages, meeting invitations).
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level   string                 `json:"level"`
	Action  string                 `json:"action,omitempty"`
	Text    string                 `json:"text"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AuditRecord is one audited occurrence.
type AuditRecord struct {
	Level     string
	Action    string
	Text      string
	RequestID string
	UserID    int
	Details   map[string]interface{}
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes rec. A nil emitter drops the record.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = "INFO"
	}

	var userID *string
	if rec.UserID != 0 {
		id := strconv.Itoa(rec.UserID)
		userID = &id
	}

	glog.V(1).Infof("audit emit: level=%s action=%s request_id=%s user_id=%d text=%q", rec.Level, rec.Action, rec.RequestID, rec.UserID, rec.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:   rec.Level,
			Action:  rec.Action,
			Text:    rec.Text,
			Details: rec.Details,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		glog.Warningf("audit publish failed: %v", err)
	}
}
