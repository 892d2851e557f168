package models

import "time"

// MeetingInvitation records that a user was admitted to a meeting room.
type MeetingInvitation struct {
	MeetingID string    `db:"meeting_id" json:"meeting_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	GrantedAt time.Time `db:"granted_at" json:"granted_at"`
}
