package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/auth"
	"github.com/sakif/livecanvas/internal/model"
	"github.com/sakif/livecanvas/internal/repository"
)

var loginPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{2,31}$`)

// AuthService signs learners in with GitHub or a local password and
// issues their JWT.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{users: users, tokens: tokens, passwords: passwords, logger: logger}
}

// AuthResult is what a successful sign-in hands back to the handler.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub creates the account on first login and refreshes
// the profile afterwards.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, errors.New("service: GitHub user must not be nil")
	}
	user := &model.User{
		GitHubID:  gh.ID,
		Login:     gh.Login,
		Email:     gh.Email,
		AvatarURL: gh.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service: upserting github user %d: %w", gh.ID, err)
	}
	s.logger.Info("user signed in", slog.String("userID", user.ID), slog.String("via", "github"))
	return s.issue(user)
}

// Register creates a local account and signs it in.
func (s *AuthService) Register(ctx context.Context, login, email, password string) (*AuthResult, error) {
	login, email = strings.TrimSpace(login), strings.TrimSpace(email)
	if !loginPattern.MatchString(login) {
		return nil, apperror.ValidationFailed("login",
			"login must be 3 to 32 letters, digits, '-' or '_'")
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "email address looks wrong")
	}

	hash, err := s.passwords.Hash(password)
	if errors.Is(err, auth.ErrPasswordLength) {
		return nil, apperror.ValidationFailed("password", err.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	user := &model.User{Login: login, Email: email, PasswordHash: hash}
	if err := s.users.CreateLocal(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict(fmt.Sprintf("login %q is taken", login))
		}
		return nil, fmt.Errorf("service: creating user %s: %w", login, err)
	}
	s.logger.Info("user registered", slog.String("userID", user.ID))
	return s.issue(user)
}

// errBadCredentials is the same for an unknown login and a wrong password,
// so the response does not reveal which logins exist.
var errBadCredentials = &apperror.AppError{Err: apperror.ErrForbidden, Message: "wrong login or password"}

// Login checks a local password.
func (s *AuthService) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("service: looking up %s: %w", login, err)
	}
	if user.PasswordHash == "" {
		return nil, errBadCredentials
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("failed sign-in", slog.String("login", user.Login))
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service: %w", err)
	}
	s.logger.Info("user signed in", slog.String("userID", user.ID), slog.String("via", "password"))
	return s.issue(user)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

// ValidateToken returns the user ID inside tokenStr.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	return s.tokens.Validate(tokenStr)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service: issuing token for %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
