package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/model"
	"github.com/sakif/livecanvas/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, login, email, avatar_url, password_hash, created_at, updated_at`

// Upsert keeps the internal ID of a returning GitHub user and refreshes
// their profile. A new GitHub user whose login is already taken by a local
// account gets the login suffixed with "-gh".
func (db *DB) Upsert(ctx context.Context, u *model.User) error {
	if u.GitHubID == 0 {
		return fmt.Errorf("sqlite: upsert needs a GitHub ID")
	}

	var existingID string
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM users WHERE github_id = ?`, u.GitHubID).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("sqlite: looking up github user %d: %w", u.GitHubID, err)
	}

	now := time.Now().UTC()
	if existingID != "" {
		u.ID, u.UpdatedAt = existingID, now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET email = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
			u.Email, u.AvatarURL, u.UpdatedAt, u.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", u.ID, err)
		}
		stored, err := db.GetUserByID(ctx, u.ID)
		if err != nil {
			return err
		}
		*u = *stored
		return nil
	}

	u.ID = xid.New().String()
	u.CreatedAt, u.UpdatedAt = now, now
	err = db.insertUser(ctx, u)
	if isUniqueViolation(err) {
		u.Login += "-gh"
		err = db.insertUser(ctx, u)
	}
	if err != nil {
		return fmt.Errorf("sqlite: inserting github user %d: %w", u.GitHubID, err)
	}
	return nil
}

func (db *DB) CreateLocal(ctx context.Context, u *model.User) error {
	u.ID = xid.New().String()
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	err := db.insertUser(ctx, u)
	if isUniqueViolation(err) {
		return apperror.Conflict(fmt.Sprintf("login %q is taken", u.Login))
	}
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", u.Login, err)
	}
	return nil
}

func (db *DB) insertUser(ctx context.Context, u *model.User) error {
	githubID := sql.NullInt64{Int64: u.GitHubID, Valid: u.GitHubID != 0}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, githubID, u.Login, u.Email, u.AvatarURL, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

func (db *DB) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return db.getUser(ctx, "login", login)
}

// getUser looks up by a fixed column name, never user input.
func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.ID, &githubID, &u.Login, &u.Email, &u.AvatarURL, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", value)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	u.GitHubID = githubID.Int64
	return &u, nil
}
