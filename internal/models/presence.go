package models

import "time"

// UserProfile is the presence record of a user.
type UserProfile struct {
	UserID   int       `db:"user_id" json:"user_id"`
	IsOnline bool      `db:"is_online" json:"is_online"`
	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}
