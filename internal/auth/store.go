package auth

import (
	"context"
	"time"
)

// UserStore persists users. Implementations must increment token_version
// atomically with the password or status write that requires it.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// TokenVersion returns the current version. Always read from the source of truth.
	TokenVersion(ctx context.Context, id string) (int64, error)
	// UpdatePassword stores the hash and returns the incremented version.
	UpdatePassword(ctx context.Context, id, passwordHash string) (int64, error)
	SetStatus(ctx context.Context, id string, status Status, bumpVersion bool) (*User, error)
}

// SpentTokens remembers refresh token ids that were already exchanged.
type SpentTokens interface {
	// MarkSpent records jti for ttl and reports whether this call was the first.
	MarkSpent(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}
