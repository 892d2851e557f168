package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"teams-chat/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.events", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.Service == "teams-chat" &&
			env.Environment == "test" &&
			env.RequestID == "req-1" &&
			env.UserID != nil && *env.UserID == "7" &&
			env.Payload.Level == "WARN" &&
			env.Payload.Action == "dm_blocked" &&
			env.Payload.Details["receiver_id"] == 9
	})).Return(nil).Once()

	emitter := NewAuditEmitter(publisher, "audit.events", "teams-chat", "test")
	emitter.Emit(context.Background(), AuditRecord{
		Level:     "WARN",
		Action:    "dm_blocked",
		Text:      "direct message refused",
		RequestID: "req-1",
		UserID:    7,
		Details:   map[string]interface{}{"receiver_id": 9},
	})

	publisher.AssertExpectations(t)
}

func TestEmitDefaultsAndAnonymousUser(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.events", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.UserID == nil && env.Payload.Level == "INFO"
	})).Return(errors.New("broker down")).Once()

	NewAuditEmitter(publisher, "audit.events", "teams-chat", "test").
		Emit(context.Background(), AuditRecord{Text: "audit test"})

	publisher.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), AuditRecord{Text: "ignored"})
	})
}
