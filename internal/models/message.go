package models

import "time"

// Message is a persisted chat message. Exactly one of ReceiverID and ProjectID is set.
type Message struct {
	ID            int       `db:"id" json:"id"`
	SenderID      int       `db:"sender_id" json:"sender_id"`
	ReceiverID    *int      `db:"receiver_id" json:"receiver_id,omitempty"`
	ProjectID     *int      `db:"project_id" json:"project_id,omitempty"`
	EncryptedText []byte    `db:"encrypted_text" json:"-"`
	Text          string    `db:"-" json:"text"`
	FileURL       *string   `db:"file_url" json:"file_url"`
	FileName      *string   `db:"file_name" json:"file_name,omitempty"`
	ReplyToID     *int      `db:"reply_to_id" json:"reply_to_id"`
	IsRead        bool      `db:"is_read" json:"is_read"`
	CreatedAt     time.Time `db:"created_at" json:"timestamp"`
}

// NewMessage is the input for creating a message.
type NewMessage struct {
	SenderID   int
	ReceiverID *int
	ProjectID  *int
	Text       string
	FileURL    *string
	FileName   *string
	ReplyToID  *int
}

// Conversation scopes an operation to either a direct conversation or a project.
type Conversation struct {
	PartnerID int
	ProjectID int
}

// Direct reports whether the conversation is a one-to-one chat.
func (c Conversation) Direct() bool {
	return c.PartnerID != 0
}
