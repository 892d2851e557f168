package db

import (
	"fmt"

	"github.com/golang/glog"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the database with the given driver ("postgres" via lib/pq or
// "pgx" via pgx stdlib) and runs migrations.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	if driver != "postgres" && driver != "pgx" {
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	glog.Info("database migrations applied")
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id SERIAL PRIMARY KEY,
        username TEXT NOT NULL UNIQUE
    );`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
        user_id INT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
        is_online BOOLEAN NOT NULL DEFAULT FALSE,
        last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS blocked_users (
        id SERIAL PRIMARY KEY,
        blocker_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        blocked_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ DEFAULT NOW(),
        UNIQUE(blocker_id, blocked_id)
    );`,
	`CREATE TABLE IF NOT EXISTS projects (
        id SERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        created_at TIMESTAMPTZ DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS project_members (
        project_id INT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
        user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        PRIMARY KEY(project_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        id SERIAL PRIMARY KEY,
        sender_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        receiver_id INT REFERENCES users(id) ON DELETE CASCADE,
        project_id INT REFERENCES projects(id) ON DELETE CASCADE,
        encrypted_text BYTEA NOT NULL,
        file_url TEXT,
        file_name TEXT,
        reply_to_id INT REFERENCES messages(id) ON DELETE SET NULL,
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CONSTRAINT messages_exactly_one_destination CHECK ((receiver_id IS NULL) <> (project_id IS NULL))
    );`,
	`CREATE INDEX IF NOT EXISTS messages_dm_idx ON messages (sender_id, receiver_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS messages_project_idx ON messages (project_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS meeting_invitations (
        meeting_id TEXT NOT NULL,
        user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY(meeting_id, user_id)
    );`,
}
