package ws

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang/glog"

	"teams-chat/internal/bus"
)

const kindMeeting = "meeting"

// meetingRoom is an ephemeral signaling room. Nothing said in it is stored.
type meetingRoom struct {
	meetingID string
	topic     string
}

func newMeetingRoom(meetingID string) *meetingRoom {
	return &meetingRoom{meetingID: meetingID, topic: bus.MeetingTopic(meetingID)}
}

func (m *meetingRoom) kind() string { return kindMeeting }
func (m *meetingRoom) resource() string { return m.meetingID }
func (m *meetingRoom) topics() []string { return []string{m.topic} }
func (m *meetingRoom) countsPresence() bool { return false }

func (m *meetingRoom) open(ctx context.Context, s *session) {
	frame := userJoinedFrame{Type: typeUserJoined, UserID: s.user.UserID, Username: s.user.Username}
	if err := s.publish(ctx, m.topic, typeUserJoined, 0, frame); err != nil {
		glog.Warningf("ws %s: %v", s.info.ConnID, err)
	}
}

func (m *meetingRoom) close(ctx context.Context, s *session) {
	frame := userLeftFrame{Type: typeUserLeft, UserID: s.user.UserID}
	if err := s.publish(ctx, m.topic, typeUserLeft, 0, frame); err != nil {
		glog.Warningf("ws %s: %v", s.info.ConnID, err)
	}
}

// accept hides a participant's own join and leave, and delivers signals only to their target.
func (m *meetingRoom) accept(s *session, ev bus.Event) bool {
	switch ev.Type {
	case typeUserJoined, typeUserLeft:
		return ev.Origin != s.user.UserID
	case typeSignal:
		return ev.Target == s.user.UserID
	}
	return true
}

func (m *meetingRoom) handle(ctx context.Context, s *session, f inbound) string {
	var (
		eventType string
		target    int
		frame     interface{}
	)

	switch f.Type {
	case typeSignal:
		var in signalIn
		if err := f.decode(&in); err != nil {
			return outcomeMalformed
		}
		target = in.Target.id()
		if target == 0 {
			return outcomeDropped
		}
		eventType = typeSignal
		frame = signalFrame{Type: typeSignal, SenderID: s.user.UserID, Data: in.Data}
	case inRaiseHand, typeRaiseHand:
		var in raiseHandIn
		if err := f.decode(&in); err != nil {
			return outcomeMalformed
		}
		eventType = typeRaiseHand
		frame = raiseHandFrame{Type: typeRaiseHand, UserID: s.user.UserID, IsRaised: in.IsRaised}
	case typeReaction:
		var in reactionIn
		if err := f.decode(&in); err != nil {
			return outcomeMalformed
		}
		if strings.TrimSpace(in.Emoji) == "" {
			return outcomeDropped
		}
		eventType = typeReaction
		frame = reactionFrame{Type: typeReaction, UserID: s.user.UserID, Emoji: in.Emoji}
	case inChatMessage, typeChatMessage:
		var in meetingChatIn
		if err := f.decode(&in); err != nil {
			return outcomeMalformed
		}
		text := strings.TrimSpace(in.Text)
		if text == "" || utf8.RuneCountInString(text) > maxTextLength {
			return outcomeDropped
		}
		eventType = typeChatMessage
		frame = meetingChatFrame{
			Type:      typeChatMessage,
			SenderID:  s.user.UserID,
			Username:  s.user.Username,
			Text:      text,
			Timestamp: time.Now().Format(meetingClockLayout),
		}
	default:
		return outcomeIgnored
	}

	if err := s.publish(ctx, m.topic, eventType, target, frame); err != nil {
		glog.Warningf("ws %s: %v", s.info.ConnID, err)
		return outcomeFailed
	}
	return outcomeOK
}
