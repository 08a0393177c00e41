package model

import "time"

// User is a learner account. GitHub users have GitHubID set; local
// accounts have PasswordHash set. A user may have both.
type User struct {
	ID           string    `json:"id"`
	GitHubID     int64     `json:"githubId,omitempty"` // 0 for local-only accounts
	Login        string    `json:"login"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatarUrl"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
