package bus

import (
	"strconv"
	"strings"
)

// DMTopic is the conversation topic of two users; argument order does not matter.
func DMTopic(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return "dm:" + strconv.Itoa(a) + ":" + strconv.Itoa(b)
}

func ProjectTopic(projectID int) string {
	return "project:" + strconv.Itoa(projectID)
}

func MeetingTopic(meetingID string) string {
	return "meeting:" + meetingID
}

func NotifyTopic(userID int) string {
	return "notify:" + strconv.Itoa(userID)
}

// TopicKind returns the topic family ("dm", "project", ...), used as a metric label.
func TopicKind(topic string) string {
	kind, _, ok := strings.Cut(topic, ":")
	if !ok {
		return "other"
	}
	return kind
}
