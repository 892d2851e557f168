package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"teams-chat/internal/models"
)

var ErrProfileNotFound = errors.New("presence record not found")

// PresenceRepository stores per-user online state.
type PresenceRepository interface {
	SetOnline(ctx context.Context, userID int, online bool) error
	GetProfile(ctx context.Context, userID int) (models.UserProfile, error)
}

// PresenceRepo is a sqlx implementation of PresenceRepository.
type PresenceRepo struct {
	db *sqlx.DB
}

// NewPresenceRepo constructs a PresenceRepo.
func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// SetOnline upserts the presence record, creating it when missing.
func (r *PresenceRepo) SetOnline(ctx context.Context, userID int, online bool) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO user_profiles (user_id, is_online, last_seen) VALUES ($1, $2, NOW())
        ON CONFLICT (user_id) DO UPDATE SET is_online = EXCLUDED.is_online, last_seen = EXCLUDED.last_seen`, userID, online)
	return err
}

func (r *PresenceRepo) GetProfile(ctx context.Context, userID int) (models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.GetContext(ctx, &profile, `SELECT user_id, is_online, last_seen FROM user_profiles WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrProfileNotFound
	}
	return profile, err
}
