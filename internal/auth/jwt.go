// Package auth signs in learners so their sketches and run history belong
// to them.
//
// Two ways in:
//
//	GitHub    /auth/github/login ─► GitHub ─► /auth/github/callback
//	local     POST /auth/register, POST /auth/login (bcrypt passwords)
//
// Both end the same way: the server issues a JWT and stores it in the
// HttpOnly "lc_token" cookie. Scripts and the CLI may send the same token
// as "Authorization: Bearer <jwt>" instead.
//
// Auth is optional. Running programs never needs an account; only saving
// sketches does. With no JWT_SECRET configured the auth routes are not
// mounted at all.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer     = "livecanvas"
	DefaultTTL = 7 * 24 * time.Hour
)

var (
	ErrWeakSecret   = errors.New("auth: JWT secret must be at least 16 characters")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService signs and checks HS256 tokens whose subject is the user ID.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService needs a secret of at least 16 characters. ttl <= 0 means
// DefaultTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens live. The login cookie uses it as MaxAge.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Generate issues a token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration issues a token with a custom lifetime.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	now := s.now()
	c := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks the signature, algorithm, issuer and expiry, and
// returns the user ID.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	case !token.Valid || c.Subject == "":
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}
