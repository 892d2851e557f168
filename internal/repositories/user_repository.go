package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// UserRepository resolves users and the blocking relationships between them.
type UserRepository interface {
	Exists(ctx context.Context, userID int) (bool, error)
	IsBlocked(ctx context.Context, userA, userB int) (bool, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Exists(ctx context.Context, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID)
	return exists, err
}

// IsBlocked reports whether either user has blocked the other.
func (r *UserRepo) IsBlocked(ctx context.Context, userA, userB int) (bool, error) {
	var blocked bool
	err := r.db.GetContext(ctx, &blocked, `SELECT EXISTS(
        SELECT 1 FROM blocked_users
        WHERE (blocker_id=$1 AND blocked_id=$2) OR (blocker_id=$2 AND blocked_id=$1))`, userA, userB)
	return blocked, err
}
