package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/model"
)

func TestUpsert_InsertThenRefresh(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{GitHubID: 42, Login: "octocat", Email: "old@example.com"}
	if err := db.Upsert(ctx, u); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	firstID := u.ID

	again := &model.User{GitHubID: 42, Login: "octocat", Email: "new@example.com", AvatarURL: "https://a/1.png"}
	if err := db.Upsert(ctx, again); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if again.ID != firstID {
		t.Errorf("returning user got ID %q, want %q", again.ID, firstID)
	}

	got, err := db.GetUserByID(ctx, firstID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Email != "new@example.com" || got.AvatarURL != "https://a/1.png" || got.GitHubID != 42 {
		t.Errorf("profile not refreshed: %+v", got)
	}
}

func TestUpsert_LoginTakenByLocalAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.CreateLocal(ctx, &model.User{Login: "ada", PasswordHash: "h"}); err != nil {
		t.Fatal(err)
	}
	gh := &model.User{GitHubID: 7, Login: "ada"}
	if err := db.Upsert(ctx, gh); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if gh.Login != "ada-gh" {
		t.Errorf("Login = %q, want %q", gh.Login, "ada-gh")
	}
}

func TestCreateLocal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{Login: "grace", Email: "g@example.com", PasswordHash: "$2a$04$hash"}
	if err := db.CreateLocal(ctx, u); err != nil {
		t.Fatalf("CreateLocal() error = %v", err)
	}

	got, err := db.GetUserByLogin(ctx, "grace")
	if err != nil {
		t.Fatalf("GetUserByLogin() error = %v", err)
	}
	if got.ID != u.ID || got.PasswordHash != "$2a$04$hash" || got.GitHubID != 0 {
		t.Errorf("GetUserByLogin() = %+v", got)
	}

	err = db.CreateLocal(ctx, &model.User{Login: "grace", PasswordHash: "x"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate login error = %v, want ErrConflict", err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := db.GetUserByID(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserByLogin(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByLogin error = %v, want ErrNotFound", err)
	}
}
