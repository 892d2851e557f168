package ws

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang/glog"

	"teams-chat/internal/bus"
	"teams-chat/internal/files"
	"teams-chat/internal/models"
	"teams-chat/internal/telemetry"
)

const (
	kindDM      = "dm"
	kindProject = "project"
)

// conversation is a direct or project chat. Exactly one of partnerID and projectID is set.
type conversation struct {
	topic     string
	partnerID int
	projectID int
}

func newDMConversation(userID, partnerID int) *conversation {
	return &conversation{topic: bus.DMTopic(userID, partnerID), partnerID: partnerID}
}

func newProjectConversation(projectID int) *conversation {
	return &conversation{topic: bus.ProjectTopic(projectID), projectID: projectID}
}

func (c *conversation) direct() bool { return c.partnerID != 0 }

func (c *conversation) kind() string {
	if c.direct() {
		return kindDM
	}
	return kindProject
}

func (c *conversation) resource() string {
	if c.direct() {
		return strconv.Itoa(c.partnerID)
	}
	return strconv.Itoa(c.projectID)
}

func (c *conversation) topics() []string { return []string{c.topic} }
func (c *conversation) countsPresence() bool { return true }

func (c *conversation) accept(*session, bus.Event) bool { return true }

func (c *conversation) open(ctx context.Context, s *session) {
	c.publishStatus(ctx, s, "online")
}

func (c *conversation) close(ctx context.Context, s *session) {
	c.publishStatus(ctx, s, "offline")
}

func (c *conversation) publishStatus(ctx context.Context, s *session, status string) {
	frame := statusFrame{Type: typeStatus, UserID: s.user.UserID, Username: s.user.Username, Status: status}
	if err := s.publish(ctx, c.topic, typeStatus, 0, frame); err != nil {
		glog.Warningf("ws %s: status %s: %v", s.info.ConnID, status, err)
	}
}

func (c *conversation) handle(ctx context.Context, s *session, f inbound) string {
	switch f.Type {
	case typeMessage:
		return c.handleMessage(ctx, s, f)
	case inRead:
		return c.handleRead(ctx, s, f)
	case typeTyping:
		return c.handleTyping(ctx, s, f)
	case typeRTC:
		return c.handleRTC(ctx, s, f)
	default:
		return outcomeIgnored
	}
}

func (c *conversation) handleMessage(ctx context.Context, s *session, f inbound) string {
	var in messageIn
	if err := f.decode(&in); err != nil {
		glog.Warningf("ws %s: bad message frame: %v", s.info.ConnID, err)
		return outcomeMalformed
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return outcomeDropped
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		glog.V(1).Infof("ws %s: message over %d characters dropped", s.info.ConnID, maxTextLength)
		return outcomeDropped
	}

	msg := models.NewMessage{SenderID: s.user.UserID, Text: text}
	if c.direct() {
		receiverID := c.partnerID
		if in.ReceiverID != nil && in.ReceiverID.id() != receiverID {
			glog.V(1).Infof("ws %s: receiver %d is not the conversation partner %d", s.info.ConnID, in.ReceiverID.id(), receiverID)
			return outcomeDropped
		}
		blocked, err := s.srv.users.IsBlocked(ctx, s.user.UserID, receiverID)
		if err != nil {
			glog.Errorf("ws %s: block check: %v", s.info.ConnID, err)
			return outcomeFailed
		}
		if blocked {
			s.srv.audit.Emit(ctx, telemetry.AuditRecord{
				Level:     "WARN",
				Action:    "dm_blocked",
				Text:      "direct message refused between blocked users",
				RequestID: s.info.RequestID,
				UserID:    s.user.UserID,
				Details:   map[string]interface{}{"receiver_id": receiverID},
			})
			return outcomeDropped
		}
		msg.ReceiverID = &receiverID
	} else {
		projectID := c.projectID
		msg.ProjectID = &projectID
	}
	if id := in.ReplyToID.id(); id != 0 {
		msg.ReplyToID = &id
	}

	var attachmentID string
	if in.FileURL != "" {
		att, err := files.Decode(in.FileURL, in.FileName)
		if err != nil {
			glog.V(1).Infof("ws %s: attachment rejected: %v", s.info.ConnID, err)
			return outcomeDropped
		}
		// A store failure loses the file, not the message.
		saved, err := s.srv.files.Save(ctx, att)
		if err != nil {
			glog.Errorf("ws %s: store attachment %q: %v", s.info.ConnID, att.Name, err)
		} else {
			attachmentID = saved.ID
			url := s.srv.files.URL(saved.ID)
			msg.FileURL = &url
			msg.FileName = &saved.Name
		}
	}

	stored, err := s.srv.messages.CreateMessage(ctx, msg)
	if err != nil {
		glog.Errorf("ws %s: save message: %v", s.info.ConnID, err)
		if attachmentID != "" {
			if err := s.srv.files.Delete(context.WithoutCancel(ctx), attachmentID); err != nil {
				glog.Warningf("ws %s: remove orphaned attachment %s: %v", s.info.ConnID, attachmentID, err)
			}
		}
		return outcomeFailed
	}

	frame := messageFrame{
		Type:           typeMessage,
		ID:             stored.ID,
		TempID:         in.TempID,
		Sender:         s.user.UserID,
		SenderID:       s.user.UserID,
		SenderUsername: s.user.Username,
		ProjectID:      msg.ProjectID,
		Text:           stored.Text,
		FileURL:        msg.FileURL,
		Timestamp:      stored.CreatedAt.UTC().Format(time.RFC3339Nano),
		ReplyToID:      stored.ReplyToID,
	}
	if c.direct() {
		frame.Receiver = msg.ReceiverID
		frame.ReceiverID = msg.ReceiverID
	}
	if err := s.publish(ctx, c.topic, typeMessage, 0, frame); err != nil {
		glog.Errorf("ws %s: %v", s.info.ConnID, err)
		return outcomeFailed
	}
	return outcomeOK
}

func (c *conversation) handleRead(ctx context.Context, s *session, f inbound) string {
	var in readIn
	if err := f.decode(&in); err != nil {
		glog.Warningf("ws %s: bad read frame: %v", s.info.ConnID, err)
		return outcomeMalformed
	}
	if len(in.MessageIDs) == 0 {
		return outcomeDropped
	}

	conv := models.Conversation{PartnerID: c.partnerID, ProjectID: c.projectID}
	updated, err := s.srv.messages.MarkRead(ctx, conv, s.user.UserID, in.MessageIDs)
	if err != nil {
		glog.Errorf("ws %s: mark read: %v", s.info.ConnID, err)
		return outcomeFailed
	}
	if len(updated) == 0 {
		return outcomeOK
	}

	frame := readReceiptFrame{Type: typeReadReceipt, MessageIDs: updated, ReaderID: s.user.UserID}
	if err := s.publish(ctx, c.topic, typeReadReceipt, 0, frame); err != nil {
		glog.Errorf("ws %s: %v", s.info.ConnID, err)
		return outcomeFailed
	}
	return outcomeOK
}

func (c *conversation) handleTyping(ctx context.Context, s *session, f inbound) string {
	var in typingIn
	if err := f.decode(&in); err != nil {
		return outcomeMalformed
	}
	isTyping := true
	if in.IsTyping != nil {
		isTyping = *in.IsTyping
	}

	frame := typingFrame{Type: typeTyping, UserID: s.user.UserID, Username: s.user.Username, IsTyping: isTyping}
	if err := s.publish(ctx, c.topic, typeTyping, 0, frame); err != nil {
		glog.Warningf("ws %s: %v", s.info.ConnID, err)
		return outcomeFailed
	}
	return outcomeOK
}

// handleRTC relays call signaling. In a direct conversation a targeted signal
// also goes to the target's notification channel so an incoming call rings
// even when the conversation is not open.
func (c *conversation) handleRTC(ctx context.Context, s *session, f inbound) string {
	in, ok := decodeRTC(s, f)
	if !ok {
		return outcomeDropped
	}

	frame := rtcFrame{
		Type:      typeRTC,
		Action:    in.Action,
		FromID:    s.user.UserID,
		SDP:       in.SDP,
		Candidate: in.Candidate,
		CallType:  in.CallType,
	}
	target := in.target()
	if target != 0 {
		frame.ToID = &target
	}

	if err := s.publish(ctx, c.topic, typeRTC, target, frame); err != nil {
		glog.Warningf("ws %s: %v", s.info.ConnID, err)
		return outcomeFailed
	}
	if c.direct() && target != 0 {
		if err := s.publish(ctx, bus.NotifyTopic(target), typeRTC, target, frame); err != nil {
			glog.Warningf("ws %s: %v", s.info.ConnID, err)
			return outcomeFailed
		}
	}
	return outcomeOK
}

func decodeRTC(s *session, f inbound) (rtcIn, bool) {
	var in rtcIn
	if err := f.decode(&in); err != nil {
		glog.Warningf("ws %s: bad rtc frame: %v", s.info.ConnID, err)
		return rtcIn{}, false
	}
	in.Action = strings.TrimSpace(in.Action)
	if !rtcActions[in.Action] {
		glog.V(1).Infof("ws %s: unknown rtc action %q", s.info.ConnID, in.Action)
		return rtcIn{}, false
	}
	return in, true
}
