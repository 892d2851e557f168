package ws

import (
	"context"
	"strconv"

	"github.com/golang/glog"

	"teams-chat/internal/bus"
)

const kindNotify = "notify"

// notifyChannel is a user's personal channel. It receives call signaling
// regardless of which conversation the user has open.
type notifyChannel struct {
	userID int
}

func newNotifyChannel(userID int) *notifyChannel {
	return &notifyChannel{userID: userID}
}

func (n *notifyChannel) kind() string { return kindNotify }
func (n *notifyChannel) resource() string { return strconv.Itoa(n.userID) }
func (n *notifyChannel) topics() []string { return []string{bus.NotifyTopic(n.userID)} }
func (n *notifyChannel) countsPresence() bool { return true }
func (n *notifyChannel) accept(*session, bus.Event) bool { return true }
func (n *notifyChannel) open(context.Context, *session) {}
func (n *notifyChannel) close(context.Context, *session) {}

// handle accepts rtc frames as a fallback signaling path; they go to the
// target's notification channel only.
func (n *notifyChannel) handle(ctx context.Context, s *session, f inbound) string {
	if f.Type != typeRTC {
		return outcomeIgnored
	}
	in, ok := decodeRTC(s, f)
	if !ok {
		return outcomeDropped
	}
	target := in.target()
	if target == 0 {
		return outcomeDropped
	}

	frame := rtcFrame{
		Type:      typeRTC,
		Action:    in.Action,
		FromID:    s.user.UserID,
		ToID:      &target,
		SDP:       in.SDP,
		Candidate: in.Candidate,
		CallType:  in.CallType,
	}
	if err := s.publish(ctx, bus.NotifyTopic(target), typeRTC, target, frame); err != nil {
		glog.Warningf("ws %s: %v", s.info.ConnID, err)
		return outcomeFailed
	}
	return outcomeOK
}
