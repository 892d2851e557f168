package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"teams-chat/internal/auth"
	"teams-chat/internal/bus"
	"teams-chat/internal/files"
	"teams-chat/internal/observability"
	"teams-chat/internal/repositories"
	"teams-chat/internal/telemetry"
)

// PresenceTracker counts live connections per user.
type PresenceTracker interface {
	Connect(ctx context.Context, userID int) error
	Disconnect(ctx context.Context, userID int) (bool, error)
}

// Deps are the collaborators shared by every websocket session.
type Deps struct {
	Bus      bus.Bus
	Auth     auth.Authenticator
	Messages repositories.MessageRepository
	Projects repositories.ProjectRepository
	Users    repositories.UserRepository
	Meetings repositories.MeetingRepository
	Presence PresenceTracker
	Files    files.Store
	Audit    *telemetry.AuditEmitter
}

// Server accepts websocket handshakes for the chat, notify and meeting channels.
type Server struct {
	bus      bus.Bus
	auth     auth.Authenticator
	messages repositories.MessageRepository
	projects repositories.ProjectRepository
	users    repositories.UserRepository
	meetings repositories.MeetingRepository
	presence PresenceTracker
	files    files.Store
	audit    *telemetry.AuditEmitter
	upgrader websocket.Upgrader
}

// NewServer constructs a Server.
func NewServer(d Deps) *Server {
	return &Server{
		bus:      d.Bus,
		auth:     d.Auth,
		messages: d.Messages,
		projects: d.Projects,
		users:    d.Users,
		meetings: d.Meetings,
		presence: d.Presence,
		files:    d.Files,
		audit:    d.Audit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes wires the websocket endpoints.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/chat/user/:user_id", s.DM)
	r.GET("/ws/chat/project/:project_id", s.Project)
	r.GET("/ws/notify", s.Notify)
	r.GET("/ws/meeting/:meeting_id", s.Meeting)
}

// refusal is a handshake rejection answered with an HTTP status before the upgrade.
type refusal struct {
	status int
	reason string
}

func (r *refusal) Error() string { return r.reason }

func refuse(status int, reason string) error {
	return &refusal{status: status, reason: reason}
}

// authorizer checks an authenticated user against the requested resource and
// returns the channel the session will run.
type authorizer func(ctx context.Context, id auth.Identity) (channel, error)

// DM handles /ws/chat/user/:user_id, the direct conversation with that user.
func (s *Server) DM(c *gin.Context) {
	partnerID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || partnerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	s.serve(c, kindDM, c.Param("user_id"), func(ctx context.Context, id auth.Identity) (channel, error) {
		exists, err := s.users.Exists(ctx, partnerID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, refuse(http.StatusNotFound, "user not found")
		}
		return newDMConversation(id.UserID, partnerID), nil
	})
}

// Project handles /ws/chat/project/:project_id. Only project members may connect.
func (s *Server) Project(c *gin.Context) {
	projectID, err := strconv.Atoi(c.Param("project_id"))
	if err != nil || projectID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	s.serve(c, kindProject, c.Param("project_id"), func(ctx context.Context, id auth.Identity) (channel, error) {
		if _, err := s.projects.GetProject(ctx, projectID); err != nil {
			if errors.Is(err, repositories.ErrProjectNotFound) {
				return nil, refuse(http.StatusNotFound, "project not found")
			}
			return nil, err
		}
		member, err := s.projects.IsMember(ctx, projectID, id.UserID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, refuse(http.StatusForbidden, "not a member of project")
		}
		return newProjectConversation(projectID), nil
	})
}

// Notify handles /ws/notify, the per-user notification channel.
func (s *Server) Notify(c *gin.Context) {
	s.serve(c, kindNotify, "", func(_ context.Context, id auth.Identity) (channel, error) {
		return newNotifyChannel(id.UserID), nil
	})
}

// Meeting handles /ws/meeting/:meeting_id. Knowing the id is enough to join;
// the join is recorded as an invitation.
func (s *Server) Meeting(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	if !meetingIDPattern.MatchString(meetingID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meeting id"})
		return
	}

	s.serve(c, kindMeeting, meetingID, func(ctx context.Context, id auth.Identity) (channel, error) {
		granted, err := s.meetings.GrantInvitation(ctx, meetingID, id.UserID)
		if err != nil {
			return nil, err
		}
		if granted {
			s.audit.Emit(ctx, telemetry.AuditRecord{
				Action:    "meeting_invitation_granted",
				Text:      "meeting invitation granted on join",
				RequestID: observability.RequestIDFromRequest(c.Request),
				UserID:    id.UserID,
				Details:   map[string]interface{}{"meeting_id": meetingID},
			})
		}
		return newMeetingRoom(meetingID), nil
	})
}

func (s *Server) serve(c *gin.Context, kind, resource string, authorize authorizer) {
	sess := newSession(s)

	ctx, span := otel.Tracer("teams-chat/ws").Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(attribute.String("ws.kind", kind), attribute.String("ws.resource", resource))
	c.Request = c.Request.WithContext(ctx)

	sess.setState(stateAuthorizing)
	token := tokenFromRequest(c.Request)
	if token == "" {
		s.reject(c, span, http.StatusUnauthorized, "missing token")
		return
	}
	identity, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		glog.V(1).Infof("ws %s handshake: authentication failed: %v", kind, err)
		s.reject(c, span, http.StatusUnauthorized, "invalid token")
		return
	}

	ch, err := authorize(ctx, identity)
	if err != nil {
		var r *refusal
		if errors.As(err, &r) {
			s.reject(c, span, r.status, r.reason)
			return
		}
		glog.Errorf("ws %s handshake: authorize user=%d resource=%s: %v", kind, identity.UserID, resource, err)
		span.RecordError(err)
		s.reject(c, span, http.StatusInternalServerError, "internal error")
		return
	}

	sess.ch = ch
	sess.user = identity
	sess.info = ConnInfo{
		ConnID:      newConnID(),
		Kind:        kind,
		Resource:    resource,
		UserID:      identity.UserID,
		Username:    identity.Username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	// Subscribed before the upgrade completes, so the client never misses an
	// event published after its handshake returned.
	sess.subscribe()
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sess.unsubscribe()
		glog.Warningf("ws %s handshake: upgrade user=%d: %v", kind, identity.UserID, err)
		span.SetStatus(codes.Error, "upgrade failed")
		span.End()
		return
	}
	sess.conn = conn
	span.End()

	sess.run(context.WithoutCancel(ctx))
}

func (s *Server) reject(c *gin.Context, span trace.Span, status int, reason string) {
	span.SetStatus(codes.Error, reason)
	span.End()
	c.JSON(status, gin.H{"error": reason})
}
