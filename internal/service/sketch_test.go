package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/model"
	"github.com/sakif/livecanvas/internal/repository"
)

// mockSketchRepo keeps sketches in a map. It records the last ListOptions
// so tests can see what the service asked for.
type mockSketchRepo struct {
	sketches map[string]*model.Sketch
	nextID   int
	lastList repository.ListOptions
	listErr  error
}

func newMockSketchRepo() *mockSketchRepo {
	return &mockSketchRepo{sketches: make(map[string]*model.Sketch)}
}

func (m *mockSketchRepo) Create(_ context.Context, sketch *model.Sketch) error {
	m.nextID++
	sketch.ID = fmt.Sprintf("mock-%d", m.nextID)
	stored := *sketch
	m.sketches[sketch.ID] = &stored
	return nil
}

func (m *mockSketchRepo) GetByID(_ context.Context, id string) (*model.Sketch, error) {
	s, ok := m.sketches[id]
	if !ok {
		return nil, apperror.NotFound("sketch", id)
	}
	cp := *s
	return &cp, nil
}

func (m *mockSketchRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Sketch, error) {
	m.lastList = opts
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []model.Sketch{}
	for _, s := range m.sketches {
		if opts.UserID == "" || s.UserID == opts.UserID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockSketchRepo) Update(_ context.Context, sketch *model.Sketch) error {
	if _, ok := m.sketches[sketch.ID]; !ok {
		return apperror.NotFound("sketch", sketch.ID)
	}
	stored := *sketch
	m.sketches[sketch.ID] = &stored
	return nil
}

func (m *mockSketchRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.sketches[id]; !ok {
		return apperror.NotFound("sketch", id)
	}
	delete(m.sketches, id)
	return nil
}

func newTestSketchService() (*SketchService, *mockSketchRepo) {
	repo := newMockSketchRepo()
	return NewSketchService(repo, discardLogger()), repo
}

const bounce = "def main():\n    print('hi')\n"

func TestSketchCreate_Success(t *testing.T) {
	svc, repo := newTestSketchService()

	sketch, err := svc.Create(context.Background(), "  Bouncing ball ", bounce, " moves ", "user-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sketch.ID == "" {
		t.Fatal("Create() returned sketch without ID")
	}
	if sketch.Name != "Bouncing ball" || sketch.Description != "moves" {
		t.Errorf("got name %q description %q, want them trimmed", sketch.Name, sketch.Description)
	}
	if sketch.Code != bounce {
		t.Error("Create() must not touch the code")
	}
	if repo.sketches[sketch.ID].UserID != "user-1" {
		t.Errorf("stored UserID = %q, want user-1", repo.sketches[sketch.ID].UserID)
	}
}

func TestSketchCreate_Validation(t *testing.T) {
	tests := []struct {
		name        string
		sketchName  string
		code        string
		description string
		field       string
	}{
		{"empty name", "", bounce, "", "name"},
		{"whitespace name", "   ", bounce, "", "name"},
		{"name too long", strings.Repeat("n", MaxSketchNameLength+1), bounce, "", "name"},
		{"code too long", "big", strings.Repeat("x", MaxCodeLength+1), "", "code"},
		{"description too long", "d", bounce, strings.Repeat("d", MaxDescriptionLength+1), "description"},
	}

	svc, _ := newTestSketchService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.sketchName, tt.code, tt.description, "")
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Create() error = %v, want validation error", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestSketchGetByID(t *testing.T) {
	svc, _ := newTestSketchService()
	ctx := context.Background()

	created, err := svc.Create(ctx, "a", bounce, "", "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	got, err := svc.GetByID(ctx, " "+created.ID+" ")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "a" {
		t.Errorf("Name = %q, want a", got.Name)
	}

	if _, err := svc.GetByID(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing: error = %v, want not found", err)
	}
	if _, err := svc.GetByID(ctx, ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("empty: error = %v, want validation", err)
	}
}

func TestSketchList_ClampsPaging(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultListLimit, 0},
		{-5, -3, DefaultListLimit, 0},
		{1000, 10, MaxListLimit, 10},
		{7, 2, 7, 2},
	}

	svc, repo := newTestSketchService()
	for _, tt := range tests {
		if _, err := svc.List(context.Background(), tt.limit, tt.offset, "u"); err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if repo.lastList.Limit != tt.wantLimit || repo.lastList.Offset != tt.wantOffset {
			t.Errorf("List(%d, %d) asked for %d/%d, want %d/%d", tt.limit, tt.offset,
				repo.lastList.Limit, repo.lastList.Offset, tt.wantLimit, tt.wantOffset)
		}
		if repo.lastList.UserID != "u" {
			t.Errorf("UserID = %q, want u", repo.lastList.UserID)
		}
	}
}

func TestSketchList_RepositoryError(t *testing.T) {
	svc, repo := newTestSketchService()
	repo.listErr = errors.New("locked")
	if _, err := svc.List(context.Background(), 0, 0, ""); err == nil {
		t.Fatal("List() should propagate repository errors")
	}
}

func TestSketchUpdate(t *testing.T) {
	svc, _ := newTestSketchService()
	ctx := context.Background()

	created, err := svc.Create(ctx, "first", bounce, "", "owner")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	updated, err := svc.Update(ctx, created.ID, "", "def main():\n    pass\n", "new", "owner")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "first" {
		t.Errorf("empty name should keep %q, got %q", "first", updated.Name)
	}
	if updated.Description != "new" {
		t.Errorf("Description = %q, want new", updated.Description)
	}

	if _, err := svc.Update(ctx, created.ID, "x", bounce, "", "intruder"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("wrong owner: error = %v, want forbidden", err)
	}
	if _, err := svc.Update(ctx, "missing", "x", bounce, "", "owner"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing: error = %v, want not found", err)
	}
	if _, err := svc.Update(ctx, created.ID, strings.Repeat("n", MaxSketchNameLength+1), bounce, "", "owner"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("long name: error = %v, want validation", err)
	}
}

func TestSketchUpdate_AnonymousSketchIsOpen(t *testing.T) {
	svc, _ := newTestSketchService()
	ctx := context.Background()

	created, err := svc.Create(ctx, "shared", bounce, "", "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := svc.Update(ctx, created.ID, "renamed", bounce, "", "anyone"); err != nil {
		t.Errorf("Update() error = %v, want anonymous sketches editable", err)
	}
}

func TestSketchDelete(t *testing.T) {
	svc, repo := newTestSketchService()
	ctx := context.Background()

	created, err := svc.Create(ctx, "doomed", bounce, "", "owner")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := svc.Delete(ctx, created.ID, "intruder"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("wrong owner: error = %v, want forbidden", err)
	}
	if _, ok := repo.sketches[created.ID]; !ok {
		t.Fatal("sketch deleted by a non-owner")
	}

	if err := svc.Delete(ctx, created.ID, "owner"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := repo.sketches[created.ID]; ok {
		t.Error("sketch still stored after Delete()")
	}
	if err := svc.Delete(ctx, "", "owner"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("empty ID: error = %v, want validation", err)
	}
}
