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

var _ repository.SketchRepository = (*DB)(nil)

const sketchColumns = `id, name, code, description, user_id, created_at, updated_at`

// Create fills in the ID and timestamps.
func (db *DB) Create(ctx context.Context, s *model.Sketch) error {
	s.ID = xid.New().String()
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sketches (`+sketchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Code, s.Description, nullString(s.UserID), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating sketch: %w", err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Sketch, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sketchColumns+` FROM sketches WHERE id = ?`, id)
	s, err := scanSketch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("sketch", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting sketch %s: %w", id, err)
	}
	return s, nil
}

// List returns sketches newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Sketch, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)

	query := `SELECT ` + sketchColumns + ` FROM sketches`
	args := []any{}
	if opts.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, opts.UserID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing sketches: %w", err)
	}
	defer rows.Close()

	sketches := make([]model.Sketch, 0, limit)
	for rows.Next() {
		s, err := scanSketch(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning sketch row: %w", err)
		}
		sketches = append(sketches, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating sketches: %w", err)
	}
	return sketches, nil
}

// Update rewrites name, code and description. ID, owner and creation time
// never change.
func (db *DB) Update(ctx context.Context, s *model.Sketch) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE sketches SET name = ?, code = ?, description = ?, updated_at = ? WHERE id = ?`,
		s.Name, s.Code, s.Description, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating sketch %s: %w", s.ID, err)
	}
	return expectOneRow(res, "sketch", s.ID)
}

func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sketches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting sketch %s: %w", id, err)
	}
	return expectOneRow(res, "sketch", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSketch(row scanner) (*model.Sketch, error) {
	var (
		s      model.Sketch
		userID sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Code, &s.Description, &userID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.UserID = userID.String
	return &s, nil
}

func expectOneRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
