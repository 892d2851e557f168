package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// MeetingRepository records meeting admissions.
type MeetingRepository interface {
	GrantInvitation(ctx context.Context, meetingID string, userID int) (bool, error)
}

// MeetingRepo is a sqlx implementation of MeetingRepository.
type MeetingRepo struct {
	db *sqlx.DB
}

// NewMeetingRepo constructs a MeetingRepo.
func NewMeetingRepo(db *sqlx.DB) *MeetingRepo {
	return &MeetingRepo{db: db}
}

// GrantInvitation records the user as invited. It reports true only the first time.
func (r *MeetingRepo) GrantInvitation(ctx context.Context, meetingID string, userID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO meeting_invitations (meeting_id, user_id) VALUES ($1, $2)
        ON CONFLICT (meeting_id, user_id) DO NOTHING`, meetingID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
