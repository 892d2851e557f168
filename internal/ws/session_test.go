package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"teams-chat/internal/auth"
	"teams-chat/internal/bus"
	"teams-chat/internal/files"
	"teams-chat/internal/mocks"
	"teams-chat/internal/models"
	"teams-chat/internal/presence"
	"teams-chat/internal/repositories"
	"teams-chat/internal/telemetry"
)

type presenceCall struct {
	userID int
	online bool
}

// presenceLog records presence writes; sessions may still write after a test
// returns, so it never fails on unexpected calls.
type presenceLog struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (p *presenceLog) SetOnline(_ context.Context, userID int, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenceCall{userID: userID, online: online})
	return nil
}

func (p *presenceLog) count(userID int, online bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.userID == userID && c.online == online {
			n++
		}
	}
	return n
}

type harness struct {
	t        *testing.T
	url      string
	hub      *bus.Hub
	jwt      *auth.JWT
	messages *mocks.MessageRepositoryMock
	projects *mocks.ProjectRepositoryMock
	users    *mocks.UserRepositoryMock
	meetings *mocks.MeetingRepositoryMock
	audit    *mocks.PublisherMock
	presence *presenceLog
	files    *files.BoltStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := files.OpenBoltStore(filepath.Join(t.TempDir(), "attachments.db"), "http://media.test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		t:        t,
		hub:      bus.NewHub(),
		jwt:      auth.NewJWT("test-secret"),
		messages: new(mocks.MessageRepositoryMock),
		projects: new(mocks.ProjectRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
		meetings: new(mocks.MeetingRepositoryMock),
		audit:    new(mocks.PublisherMock),
		presence: &presenceLog{},
		files:    store,
	}
	h.audit.On("Publish", mock.Anything, "audit", mock.Anything).Return(nil).Maybe()

	srv := NewServer(Deps{
		Bus:      h.hub,
		Auth:     h.jwt,
		Messages: h.messages,
		Projects: h.projects,
		Users:    h.users,
		Meetings: h.meetings,
		Presence: presence.NewTracker(h.presence),
		Files:    store,
		Audit:    telemetry.NewAuditEmitter(h.audit, "audit", "teams-chat", "test"),
	})
	router := gin.New()
	srv.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	h.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return h
}

func (h *harness) token(userID int, username string) string {
	h.t.Helper()
	token, err := h.jwt.Sign(userID, username, time.Minute)
	require.NoError(h.t, err)
	return token
}

func (h *harness) tryDial(path, token string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(h.url+path, header)
}

func (h *harness) dial(path string, userID int, username string) *websocket.Conn {
	h.t.Helper()
	conn, _, err := h.tryDial(path, h.token(userID, username))
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *harness) allowDM() {
	h.users.On("Exists", mock.Anything, mock.Anything).Return(true, nil)
	h.users.On("IsBlocked", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
}

type frame map[string]interface{}

func ofType(frameType string) func(frame) bool {
	return func(f frame) bool { return f["type"] == frameType }
}

func statusOf(userID int, status string) func(frame) bool {
	return func(f frame) bool {
		return f["type"] == "status" && f["user_id"] == float64(userID) && f["status"] == status
	}
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readUntil reads frames until one matches and returns it along with the frames skipped before it.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) (frame, []frame) {
	t.Helper()
	var skipped []frame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f, skipped
		}
		skipped = append(skipped, f)
	}
}

func countFrames(frames []frame, match func(frame) bool) int {
	n := 0
	for _, f := range frames {
		if match(f) {
			n++
		}
	}
	return n
}

func intPtr(v int) *int { return &v }

func TestDMMessageReachesBothParticipants(t *testing.T) {
	h := newHarness(t)
	h.allowDM()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.SenderID == 1 &&
			in.ReceiverID != nil && *in.ReceiverID == 2 &&
			in.ProjectID == nil &&
			in.Text == "hi" &&
			in.ReplyToID != nil && *in.ReplyToID == 4
	})).Return(models.Message{ID: 10, SenderID: 1, ReceiverID: intPtr(2), Text: "hi", ReplyToID: intPtr(4), CreatedAt: created}, nil).Once()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	bob := h.dial("/ws/chat/user/1", 2, "bob")
	require.Equal(t, 2, h.hub.Subscribers(bus.DMTopic(1, 2)))

	send(t, alice, map[string]interface{}{"type": "message", "receiver_id": 2, "text": "  hi  ", "temp_id": "t1", "reply_to_id": "4"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg, _ := readUntil(t, conn, ofType("message"))
		assert.Equal(t, float64(10), msg["id"])
		assert.Equal(t, "t1", msg["temp_id"])
		assert.Equal(t, float64(1), msg["sender"])
		assert.Equal(t, float64(1), msg["sender_id"])
		assert.Equal(t, "alice", msg["sender_username"])
		assert.Equal(t, float64(2), msg["receiver"])
		assert.Equal(t, float64(2), msg["receiver_id"])
		assert.Equal(t, "hi", msg["text"])
		assert.Equal(t, "2024-05-01T12:00:00Z", msg["timestamp"])
		assert.Equal(t, float64(4), msg["reply_to_id"])
		assert.Equal(t, false, msg["is_read"])
		assert.Nil(t, msg["file_url"])
		assert.NotContains(t, msg, "project_id")
	}

	send(t, alice, map[string]interface{}{"type": "typing"})
	typing, skipped := readUntil(t, alice, ofType("typing"))
	assert.Equal(t, true, typing["is_typing"])
	assert.Zero(t, countFrames(skipped, ofType("message")), "sender must see its message once")

	h.messages.AssertExpectations(t)
}

func TestDMReceiverMustBeThePartner(t *testing.T) {
	h := newHarness(t)
	h.allowDM()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	send(t, alice, map[string]interface{}{"type": "message", "receiver_id": 3, "text": "wrong room"})
	send(t, alice, map[string]interface{}{"type": "typing", "is_typing": false})

	typing, skipped := readUntil(t, alice, ofType("typing"))
	assert.Equal(t, false, typing["is_typing"])
	assert.Zero(t, countFrames(skipped, ofType("message")))
	h.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestBlockedDirectMessageIsDroppedAndAudited(t *testing.T) {
	h := newHarness(t)
	h.users.On("Exists", mock.Anything, 2).Return(true, nil)
	h.users.On("IsBlocked", mock.Anything, 1, 2).Return(true, nil)

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	send(t, alice, map[string]interface{}{"type": "message", "text": "let me in"})
	send(t, alice, map[string]interface{}{"type": "typing"})

	_, skipped := readUntil(t, alice, ofType("typing"))
	assert.Zero(t, countFrames(skipped, ofType("message")))
	h.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	h.audit.AssertCalled(t, "Publish", mock.Anything, "audit", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Action == "dm_blocked" && env.UserID != nil && *env.UserID == "1"
	}))
}

func TestProjectMessageCarriesProjectID(t *testing.T) {
	h := newHarness(t)
	h.projects.On("GetProject", mock.Anything, 7).Return(models.Project{ID: 7, Name: "apollo"}, nil)
	h.projects.On("IsMember", mock.Anything, 7, mock.Anything).Return(true, nil)
	h.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.ProjectID != nil && *in.ProjectID == 7 && in.ReceiverID == nil && in.Text == "status update"
	})).Return(models.Message{ID: 3, SenderID: 1, ProjectID: intPtr(7), Text: "status update", CreatedAt: time.Now()}, nil).Once()

	alice := h.dial("/ws/chat/project/7", 1, "alice")
	carol := h.dial("/ws/chat/project/7", 3, "carol")

	send(t, alice, map[string]interface{}{"type": "message", "text": "status update"})
	msg, _ := readUntil(t, carol, ofType("message"))
	assert.Equal(t, float64(7), msg["project_id"])
	assert.NotContains(t, msg, "receiver_id")
	assert.Nil(t, msg["temp_id"])

	send(t, alice, map[string]interface{}{"type": "rtc", "action": "offer", "to_id": 3, "sdp": "v=0"})
	rtc, _ := readUntil(t, carol, ofType("rtc"))
	assert.Equal(t, float64(1), rtc["from_id"])
	assert.Equal(t, float64(3), rtc["to_id"])
	h.messages.AssertExpectations(t)
}

func TestAttachmentIsStoredAndLinked(t *testing.T) {
	h := newHarness(t)
	h.allowDM()
	h.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.FileURL != nil && strings.HasPrefix(*in.FileURL, "http://media.test/media/attachments/") &&
			in.FileName != nil && *in.FileName == "notes.txt"
	})).Return(models.Message{ID: 11, Text: "see attached", CreatedAt: time.Now()}, nil).Once()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	send(t, alice, map[string]interface{}{
		"type":      "message",
		"text":      "see attached",
		"file_url":  "data:text/plain;base64,aGVsbG8=",
		"file_name": "notes.txt",
	})

	msg, _ := readUntil(t, alice, ofType("message"))
	fileURL, ok := msg["file_url"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(fileURL, "http://media.test/media/attachments/"))

	att, err := h.files.Get(context.Background(), strings.TrimPrefix(fileURL, "http://media.test/media/attachments/"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(att.Data))
	assert.Equal(t, "text/plain", att.ContentType)
	h.messages.AssertExpectations(t)
}

func TestDisallowedAttachmentDropsMessage(t *testing.T) {
	h := newHarness(t)
	h.allowDM()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	send(t, alice, map[string]interface{}{
		"type":     "message",
		"text":     "run me",
		"file_url": "data:application/x-msdownload;base64,TVqQAAMAAAAEAAAA",
	})
	send(t, alice, map[string]interface{}{"type": "typing"})

	_, skipped := readUntil(t, alice, ofType("typing"))
	assert.Zero(t, countFrames(skipped, ofType("message")))
	h.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestRawFilePayloadIsStored(t *testing.T) {
	h := newHarness(t)
	h.allowDM()
	h.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.FileURL != nil && in.FileName != nil && *in.FileName == "a.txt"
	})).Return(models.Message{ID: 12, Text: "raw", CreatedAt: time.Now()}, nil).Once()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	send(t, alice, map[string]interface{}{
		"type":      "message",
		"text":      "raw",
		"file_url":  "hello world",
		"file_name": "a.txt",
	})

	msg, _ := readUntil(t, alice, ofType("message"))
	fileURL, ok := msg["file_url"].(string)
	require.True(t, ok)
	att, err := h.files.Get(context.Background(), strings.TrimPrefix(fileURL, "http://media.test/media/attachments/"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(att.Data))
	assert.Equal(t, "text/plain", att.ContentType)
	h.messages.AssertExpectations(t)
}

func TestAttachmentStoreFailureStillSendsMessage(t *testing.T) {
	h := newHarness(t)
	h.allowDM()
	require.NoError(t, h.files.Close())
	h.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.FileURL == nil && in.FileName == nil && in.Text == "see attached"
	})).Return(models.Message{ID: 13, Text: "see attached", CreatedAt: time.Now()}, nil).Once()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	send(t, alice, map[string]interface{}{
		"type":      "message",
		"text":      "see attached",
		"file_url":  "data:text/plain;base64,aGVsbG8=",
		"file_name": "notes.txt",
	})

	msg, _ := readUntil(t, alice, ofType("message"))
	assert.Equal(t, "see attached", msg["text"])
	assert.Nil(t, msg["file_url"])
	h.messages.AssertExpectations(t)
}

func TestPersistenceFailureDropsMessageAndRemovesAttachment(t *testing.T) {
	h := newHarness(t)
	h.allowDM()

	var (
		mu      sync.Mutex
		fileURL string
	)
	h.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.FileURL != nil
	})).Run(func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		fileURL = *args.Get(1).(models.NewMessage).FileURL
	}).Return(nil, assert.AnError).Once()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	send(t, alice, map[string]interface{}{
		"type":      "message",
		"text":      "see attached",
		"file_url":  "data:text/plain;base64,aGVsbG8=",
		"file_name": "notes.txt",
	})
	send(t, alice, map[string]interface{}{"type": "typing"})

	_, skipped := readUntil(t, alice, ofType("typing"))
	assert.Zero(t, countFrames(skipped, ofType("message")))
	h.messages.AssertExpectations(t)

	mu.Lock()
	id := strings.TrimPrefix(fileURL, "http://media.test/media/attachments/")
	mu.Unlock()
	require.NotEmpty(t, id)
	_, err := h.files.Get(context.Background(), id)
	require.ErrorIs(t, err, files.ErrNotFound)
}

func TestRTCOfferReachesNotifySession(t *testing.T) {
	h := newHarness(t)
	h.allowDM()

	bob := h.dial("/ws/notify", 2, "bob")
	alice := h.dial("/ws/chat/user/2", 1, "alice")

	send(t, alice, map[string]interface{}{"type": "rtc", "action": "dial", "to": 2})
	send(t, alice, map[string]interface{}{"type": "rtc", "action": "offer", "to": 2, "sdp": "v=0", "call_type": "video"})

	rtc, _ := readUntil(t, bob, ofType("rtc"))
	assert.Equal(t, "offer", rtc["action"])
	assert.Equal(t, float64(1), rtc["from_id"])
	assert.Equal(t, float64(2), rtc["to_id"])
	assert.Equal(t, "v=0", rtc["sdp"])
	assert.Equal(t, "video", rtc["call_type"])
	assert.Nil(t, rtc["candidate"])

	echo, _ := readUntil(t, alice, ofType("rtc"))
	assert.Equal(t, "offer", echo["action"])
}

func TestNotifyChannelForwardsRTC(t *testing.T) {
	h := newHarness(t)

	alice := h.dial("/ws/notify", 1, "alice")
	bob := h.dial("/ws/notify", 2, "bob")

	send(t, alice, map[string]interface{}{"type": "rtc", "action": "end"})
	send(t, alice, map[string]interface{}{"type": "rtc", "action": "answer", "to_id": "2", "sdp": map[string]string{"type": "answer"}})

	rtc, _ := readUntil(t, bob, ofType("rtc"))
	assert.Equal(t, "answer", rtc["action"])
	assert.Equal(t, float64(2), rtc["to_id"])
	assert.Equal(t, map[string]interface{}{"type": "answer"}, rtc["sdp"])
}

func TestMeetingRoomFiltersSelfAndTargetsSignals(t *testing.T) {
	h := newHarness(t)
	h.meetings.On("GrantInvitation", mock.Anything, "standup", mock.Anything).Return(true, nil)

	ann := h.dial("/ws/meeting/standup", 1, "ann")
	ben := h.dial("/ws/meeting/standup", 2, "ben")

	joined, _ := readUntil(t, ann, ofType("user-joined"))
	assert.Equal(t, float64(2), joined["user_id"])
	assert.Equal(t, "ben", joined["username"])

	cat := h.dial("/ws/meeting/standup", 3, "cat")
	_, _ = readUntil(t, ben, func(f frame) bool { return f["type"] == "user-joined" && f["user_id"] == float64(3) })

	send(t, ann, map[string]interface{}{"type": "signal", "data": map[string]string{"sdp": "lost"}})
	send(t, ann, map[string]interface{}{"type": "signal", "target": 3, "data": map[string]string{"sdp": "x"}})
	send(t, ann, map[string]interface{}{"type": "raise_hand", "is_raised": true})
	send(t, ann, map[string]interface{}{"type": "reaction", "emoji": "🎉"})
	send(t, ann, map[string]interface{}{"type": "chat-message", "text": " hello "})

	sig, skipped := readUntil(t, cat, ofType("signal"))
	assert.Equal(t, float64(1), sig["sender_id"])
	assert.Equal(t, map[string]interface{}{"sdp": "x"}, sig["data"])
	assert.Zero(t, countFrames(skipped, ofType("user-joined")), "a participant never sees its own join")

	hand, skipped := readUntil(t, ben, ofType("raise-hand"))
	assert.Equal(t, float64(1), hand["user_id"])
	assert.Equal(t, true, hand["is_raised"])
	assert.Zero(t, countFrames(skipped, ofType("signal")), "signals only reach their target")

	reaction, _ := readUntil(t, ben, ofType("reaction"))
	assert.Equal(t, "🎉", reaction["emoji"])

	chat, skipped := readUntil(t, ann, ofType("chat-message"))
	assert.Equal(t, "hello", chat["text"])
	assert.Equal(t, "ann", chat["username"])
	assert.Regexp(t, `^\d{2}:\d{2}$`, chat["timestamp"])
	assert.Zero(t, countFrames(skipped, func(f frame) bool { return f["type"] == "user-joined" && f["user_id"] == float64(1) }))
	assert.Zero(t, countFrames(skipped, ofType("signal")))

	require.NoError(t, cat.Close())
	left, _ := readUntil(t, ann, ofType("user-left"))
	assert.Equal(t, float64(3), left["user_id"])
	assert.Zero(t, h.presence.count(1, true), "meetings do not count towards presence")
}

func TestTeardownReleasesSubscriptionsAndAnnouncesOfflineOnce(t *testing.T) {
	h := newHarness(t)
	h.allowDM()
	topic := bus.DMTopic(1, 2)

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	bob := h.dial("/ws/chat/user/1", 2, "bob")
	require.Equal(t, 2, h.hub.Subscribers(topic))

	require.NoError(t, alice.Close())

	offline, _ := readUntil(t, bob, statusOf(1, "offline"))
	assert.Equal(t, "alice", offline["username"])
	require.Eventually(t, func() bool { return h.hub.Subscribers(topic) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.presence.count(1, false) == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, bob, map[string]interface{}{"type": "typing"})
	_, skipped := readUntil(t, bob, ofType("typing"))
	assert.Zero(t, countFrames(skipped, statusOf(1, "offline")))
	assert.Equal(t, 1, h.presence.count(1, true))
	assert.Equal(t, 1, h.presence.count(1, false))
}

func TestPresenceStaysOnlineWhileAnotherConnectionIsOpen(t *testing.T) {
	h := newHarness(t)
	h.allowDM()

	dm := h.dial("/ws/chat/user/2", 1, "alice")
	notify := h.dial("/ws/notify", 1, "alice")

	require.NoError(t, dm.Close())
	require.Eventually(t, func() bool { return h.hub.Subscribers(bus.DMTopic(1, 2)) == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Never(t, func() bool { return h.presence.count(1, false) > 0 }, 200*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, notify.Close())
	require.Eventually(t, func() bool { return h.presence.count(1, false) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.presence.count(1, true))
}

func TestReadReceiptOnlyWhenMessagesTransition(t *testing.T) {
	h := newHarness(t)
	h.allowDM()
	conv := models.Conversation{PartnerID: 1}
	h.messages.On("MarkRead", mock.Anything, conv, 2, []int{5, 6}).Return([]int{5}, nil).Once()
	h.messages.On("MarkRead", mock.Anything, conv, 2, []int{5, 6}).Return([]int{}, nil).Once()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	bob := h.dial("/ws/chat/user/1", 2, "bob")

	send(t, bob, map[string]interface{}{"type": "read", "message_ids": []int{5, 6}})
	send(t, bob, map[string]interface{}{"type": "read", "message_ids": []int{5, 6}})
	send(t, bob, map[string]interface{}{"type": "typing"})

	receipt, _ := readUntil(t, alice, ofType("read_receipt"))
	assert.Equal(t, []interface{}{float64(5)}, receipt["message_ids"])
	assert.Equal(t, float64(2), receipt["reader_id"])

	_, skipped := readUntil(t, alice, ofType("typing"))
	assert.Zero(t, countFrames(skipped, ofType("read_receipt")), "a repeated receipt must not broadcast")
	h.messages.AssertExpectations(t)
}

func TestMalformedAndUnknownFramesKeepConnectionOpen(t *testing.T) {
	h := newHarness(t)
	h.allowDM()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, alice, map[string]interface{}{"type": "bogus"})
	send(t, alice, map[string]interface{}{"type": "message", "text": "   "})
	send(t, alice, map[string]interface{}{"type": "message", "text": strings.Repeat("x", maxTextLength+1)})
	send(t, alice, map[string]interface{}{"type": "typing", "is_typing": false})

	typing, _ := readUntil(t, alice, ofType("typing"))
	assert.Equal(t, false, typing["is_typing"])
	h.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestPanickingHandlerDoesNotCloseSession(t *testing.T) {
	h := newHarness(t)
	h.allowDM()
	h.messages.On("CreateMessage", mock.Anything, mock.Anything).Panic("storage exploded").Once()
	h.messages.On("CreateMessage", mock.Anything, mock.Anything).
		Return(models.Message{ID: 2, Text: "second", CreatedAt: time.Now()}, nil).Once()

	alice := h.dial("/ws/chat/user/2", 1, "alice")
	send(t, alice, map[string]interface{}{"type": "message", "text": "first"})
	send(t, alice, map[string]interface{}{"type": "message", "text": "second"})

	msg, skipped := readUntil(t, alice, ofType("message"))
	assert.Equal(t, float64(2), msg["id"])
	assert.Zero(t, countFrames(skipped, ofType("message")))
}

func TestHandshakeRefusals(t *testing.T) {
	h := newHarness(t)
	h.users.On("Exists", mock.Anything, 99).Return(false, nil)
	h.projects.On("GetProject", mock.Anything, 5).Return(nil, repositories.ErrProjectNotFound)
	h.projects.On("GetProject", mock.Anything, 6).Return(models.Project{ID: 6}, nil)
	h.projects.On("IsMember", mock.Anything, 6, 1).Return(false, nil)
	valid := h.token(1, "alice")

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{name: "missing token", path: "/ws/chat/user/2", status: http.StatusUnauthorized},
		{name: "bad token", path: "/ws/notify", token: "not-a-jwt", status: http.StatusUnauthorized},
		{name: "bad partner id", path: "/ws/chat/user/abc", token: valid, status: http.StatusBadRequest},
		{name: "unknown partner", path: "/ws/chat/user/99", token: valid, status: http.StatusNotFound},
		{name: "unknown project", path: "/ws/chat/project/5", token: valid, status: http.StatusNotFound},
		{name: "not a member", path: "/ws/chat/project/6", token: valid, status: http.StatusForbidden},
		{name: "bad meeting id", path: "/ws/meeting/" + strings.Repeat("m", 65), token: valid, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := h.tryDial(tt.path, tt.token)
			if conn != nil {
				conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			require.Equal(t, tt.status, resp.StatusCode)
		})
	}

	assert.Zero(t, h.hub.Subscribers(bus.ProjectTopic(6)))
	assert.Zero(t, h.hub.Subscribers(bus.DMTopic(1, 99)))
	assert.Zero(t, h.presence.count(1, true))
}

func TestTokenQueryParameter(t *testing.T) {
	h := newHarness(t)

	conn, _, err := websocket.DefaultDialer.Dial(h.url+"/ws/notify?token="+h.token(4, "dora"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, 1, h.hub.Subscribers(bus.NotifyTopic(4)))
}
