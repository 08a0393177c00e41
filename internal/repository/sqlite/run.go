package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/livecanvas/internal/model"
	"github.com/sakif/livecanvas/internal/repository"
)

var _ repository.RunRepository = (*DB)(nil)

// CreateRun stores a finished run. An empty ID gets a fresh xid.
func (db *DB) CreateRun(ctx context.Context, r *model.Run) error {
	if r.ID == "" {
		r.ID = xid.New().String()
	}
	r.DurationMS = r.Duration.Milliseconds()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, sketch_id, user_id, status, diagnostics, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullString(r.SketchID), nullString(r.UserID), r.Status, r.Diagnostics, r.Error,
		r.StartedAt.UTC(), r.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)

	query := `SELECT id, sketch_id, user_id, status, diagnostics, error, started_at, duration_ms FROM runs`
	args := []any{}
	if opts.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, opts.UserID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.Run, 0, limit)
	for rows.Next() {
		var (
			r                model.Run
			sketchID, userID sql.NullString
		)
		if err := rows.Scan(&r.ID, &sketchID, &userID, &r.Status, &r.Diagnostics, &r.Error, &r.StartedAt, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("sqlite: scanning run row: %w", err)
		}
		r.SketchID, r.UserID = sketchID.String, userID.String
		r.Duration = time.Duration(r.DurationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating runs: %w", err)
	}
	return runs, nil
}
