// Package repository declares the storage interfaces the services depend
// on. internal/repository/sqlite implements all of them on one *sqlite.DB.
package repository

import (
	"context"

	"github.com/sakif/livecanvas/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	UserID string // only this user's rows when set
}

type SketchRepository interface {
	Create(ctx context.Context, sketch *model.Sketch) error
	GetByID(ctx context.Context, id string) (*model.Sketch, error)
	List(ctx context.Context, opts ListOptions) ([]model.Sketch, error)
	Update(ctx context.Context, sketch *model.Sketch) error
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	// Upsert inserts or refreshes a GitHub user, keyed by GitHubID.
	Upsert(ctx context.Context, user *model.User) error
	// CreateLocal inserts a password account. A taken login is a conflict.
	CreateLocal(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
}

type RunRepository interface {
	CreateRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, opts ListOptions) ([]model.Run, error)
}
