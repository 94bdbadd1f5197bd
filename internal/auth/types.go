package auth

import (
	"time"

	"tiergate.dev/internal/token"
)

// Role is the coarse platform role of a user.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleVendor Role = "vendor"
)

// Status is the account approval state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSuspended:
		return true
	}
	return false
}

// RevokesTokens reports whether moving into s must invalidate outstanding tokens.
func (s Status) RevokesTokens() bool {
	return s == StatusSuspended || s == StatusRejected
}

// User is the identity aggregate. TokenVersion only ever increases.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	Status       Status    `json:"status" db:"status"`
	TokenVersion int64     `json:"-" db:"token_version"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Subject is the token identity snapshot of u.
func (u *User) Subject() token.Subject {
	return token.Subject{
		ID:           u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		TokenVersion: u.TokenVersion,
	}
}

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	AccessID         string    `json:"-"`
	RefreshID        string    `json:"-"`
}

// Session is the result of a successful login.
type Session struct {
	User   *User
	Tokens TokenPair
}
