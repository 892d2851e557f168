package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"teams-chat/internal/models"
)

var ErrProjectNotFound = errors.New("project not found")

// ProjectRepository answers project membership questions.
type ProjectRepository interface {
	GetProject(ctx context.Context, projectID int) (models.Project, error)
	IsMember(ctx context.Context, projectID int, userID int) (bool, error)
}

// ProjectRepo is a sqlx implementation of ProjectRepository.
type ProjectRepo struct {
	db *sqlx.DB
}

// NewProjectRepo constructs a ProjectRepo.
func NewProjectRepo(db *sqlx.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// GetProject fetches a single project.
func (r *ProjectRepo) GetProject(ctx context.Context, projectID int) (models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project, `SELECT id, name, created_at FROM projects WHERE id=$1`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, ErrProjectNotFound
	}
	return project, err
}

// IsMember checks membership.
func (r *ProjectRepo) IsMember(ctx context.Context, projectID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id=$1 AND user_id=$2)`, projectID, userID)
	return exists, err
}
