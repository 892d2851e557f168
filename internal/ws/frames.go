package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire tags of outbound frames.
const (
	typeMessage     = "message"
	typeReadReceipt = "read_receipt"
	typeTyping      = "typing"
	typeStatus      = "status"
	typeRTC         = "rtc"
	typeUserJoined  = "user-joined"
	typeUserLeft    = "user-left"
	typeSignal      = "signal"
	typeRaiseHand   = "raise-hand"
	typeReaction    = "reaction"
	typeChatMessage = "chat-message"
)

// Inbound tags that are not also outbound tags.
const (
	inRead        = "read"
	inRaiseHand   = "raise_hand"
	inChatMessage = "chat_message"
)

const (
	maxTextLength      = 5000
	meetingClockLayout = "15:04"
)

var knownInbound = map[string]bool{
	typeMessage:     true,
	inRead:          true,
	typeTyping:      true,
	typeRTC:         true,
	typeSignal:      true,
	inRaiseHand:     true,
	typeRaiseHand:   true,
	typeReaction:    true,
	inChatMessage:   true,
	typeChatMessage: true,
}

// frameLabel bounds the metric label set to the known inbound tags.
func frameLabel(frameType string) string {
	if knownInbound[frameType] {
		return frameType
	}
	return "unknown"
}

var rtcActions = map[string]bool{"offer": true, "answer": true, "candidate": true, "end": true}

// inbound is a client frame with its tag read and the body kept for typed decoding.
type inbound struct {
	Type string
	raw  []byte
}

func parseInbound(data []byte) (inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return inbound{}, err
	}
	return inbound{Type: head.Type, raw: data}, nil
}

func (f inbound) decode(v interface{}) error {
	return json.Unmarshal(f.raw, v)
}

// userRef is a user id sent by a client either as a number or as a numeric string.
type userRef int

func (u *userRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*u = 0
			return nil
		}
		data = []byte(s)
	}
	id, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("user id %s: %w", data, err)
	}
	*u = userRef(id)
	return nil
}

func (u *userRef) id() int {
	if u == nil || *u < 0 {
		return 0
	}
	return int(*u)
}

type messageIn struct {
	ReceiverID *userRef        `json:"receiver_id"`
	Text       string          `json:"text"`
	FileURL    string          `json:"file_url"`
	FileName   string          `json:"file_name"`
	ReplyToID  *userRef        `json:"reply_to_id"`
	TempID     json.RawMessage `json:"temp_id"`
}

type readIn struct {
	MessageIDs []int `json:"message_ids"`
}

type typingIn struct {
	IsTyping *bool `json:"is_typing"`
}

type rtcIn struct {
	Action    string          `json:"action"`
	To        *userRef        `json:"to"`
	ToID      *userRef        `json:"to_id"`
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
	CallType  json.RawMessage `json:"call_type"`
}

// target prefers "to" and falls back to "to_id".
func (in rtcIn) target() int {
	if id := in.To.id(); id != 0 {
		return id
	}
	return in.ToID.id()
}

type signalIn struct {
	Target *userRef        `json:"target"`
	Data   json.RawMessage `json:"data"`
}

type raiseHandIn struct {
	IsRaised bool `json:"is_raised"`
}

type reactionIn struct {
	Emoji string `json:"emoji"`
}

type meetingChatIn struct {
	Text string `json:"text"`
}

type messageFrame struct {
	Type           string          `json:"type"`
	ID             int             `json:"id"`
	TempID         json.RawMessage `json:"temp_id"`
	Sender         int             `json:"sender"`
	SenderID       int             `json:"sender_id"`
	SenderUsername string          `json:"sender_username"`
	Receiver       *int            `json:"receiver,omitempty"`
	ReceiverID     *int            `json:"receiver_id,omitempty"`
	ProjectID      *int            `json:"project_id,omitempty"`
	Text           string          `json:"text"`
	FileURL        *string         `json:"file_url"`
	Timestamp      string          `json:"timestamp"`
	ReplyToID      *int            `json:"reply_to_id"`
	IsRead         bool            `json:"is_read"`
}

type readReceiptFrame struct {
	Type       string `json:"type"`
	MessageIDs []int  `json:"message_ids"`
	ReaderID   int    `json:"reader_id"`
}

type typingFrame struct {
	Type     string `json:"type"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type statusFrame struct {
	Type     string `json:"type"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

type rtcFrame struct {
	Type      string          `json:"type"`
	Action    string          `json:"action"`
	FromID    int             `json:"from_id"`
	ToID      *int            `json:"to_id"`
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
	CallType  json.RawMessage `json:"call_type"`
}

type userJoinedFrame struct {
	Type     string `json:"type"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

type userLeftFrame struct {
	Type   string `json:"type"`
	UserID int    `json:"user_id"`
}

type signalFrame struct {
	Type     string          `json:"type"`
	SenderID int             `json:"sender_id"`
	Data     json.RawMessage `json:"data"`
}

type raiseHandFrame struct {
	Type     string `json:"type"`
	UserID   int    `json:"user_id"`
	IsRaised bool   `json:"is_raised"`
}

type reactionFrame struct {
	Type   string `json:"type"`
	UserID int    `json:"user_id"`
	Emoji  string `json:"emoji"`
}

type meetingChatFrame struct {
	Type      string `json:"type"`
	SenderID  int    `json:"sender_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}
