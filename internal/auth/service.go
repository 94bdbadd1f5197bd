package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tiergate.dev/internal/ids"
	"tiergate.dev/internal/token"
)

// Service authenticates users and manages the token lifecycle.
type Service struct {
	users UserStore
	codec *token.Codec
	spent SpentTokens
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSpentTokens makes refresh tokens single-use: a jti presented twice is
// rejected with ErrTokenReused even when the token version still matches.
func WithSpentTokens(spent SpentTokens) ServiceOption {
	return func(s *Service) error {
		s.spent = spent
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(users UserStore, codec *token.Codec, opts ...ServiceOption) (*Service, error) {
	if users == nil || codec == nil {
		return nil, errors.New("auth: user store and codec are required")
	}
	svc := &Service{users: users, codec: codec}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Login checks credentials and account status and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if err := statusError(user.Status); err != nil {
		return Session{}, err
	}
	pair, err := s.issuePair(user.Subject())
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Tokens: pair}, nil
}

// Authenticate verifies an access token and checks it against the user's
// current token version.
func (s *Service) Authenticate(ctx context.Context, raw string) (Principal, error) {
	claims, err := s.codec.Verify(raw, token.TypeAccess)
	if err != nil {
		return Principal{}, err
	}
	if err := s.checkVersion(ctx, claims); err != nil {
		return Principal{}, err
	}
	return Principal{
		UserID:       claims.ID,
		Email:        claims.Email,
		Role:         Role(claims.Role),
		TokenVersion: claims.TokenVersion,
		TokenID:      claims.JTI,
	}, nil
}

// Rotate exchanges a refresh token for a new pair issued from the stored
// user, so email and role changes reach the next pair. Verification errors
// from the codec are returned unchanged. The returned claims belong to the
// presented token and are nil when it failed verification.
func (s *Service) Rotate(ctx context.Context, raw string) (TokenPair, *token.Claims, error) {
	claims, err := s.codec.Verify(raw, token.TypeRefresh)
	if err != nil {
		return TokenPair{}, nil, err
	}
	user, err := s.users.Find(ctx, claims.ID)
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, claims, token.ErrTokenInvalid
	}
	if err != nil {
		return TokenPair{}, claims, fmt.Errorf("load user: %w", err)
	}
	if claims.TokenVersion != user.TokenVersion {
		return TokenPair{}, claims, ErrTokenRevoked
	}
	if err := statusError(user.Status); err != nil {
		return TokenPair{}, claims, err
	}
	if s.spent != nil {
		first, err := s.spent.MarkSpent(ctx, claims.JTI, claims.Remaining(s.codec.Now()))
		if err != nil {
			return TokenPair{}, claims, fmt.Errorf("mark refresh token spent: %w", err)
		}
		if !first {
			return TokenPair{}, claims, ErrTokenReused
		}
	}
	pair, err := s.issuePair(user.Subject())
	if err != nil {
		return TokenPair{}, claims, err
	}
	return pair, claims, nil
}

// Logout spends the presented refresh token when single-use tracking is on.
// It never fails; the returned claims are for auditing and may be nil.
func (s *Service) Logout(ctx context.Context, raw string) *token.Claims {
	claims, err := s.codec.Verify(raw, token.TypeRefresh)
	if err != nil {
		return token.Decode(raw)
	}
	if s.spent != nil {
		_, _ = s.spent.MarkSpent(ctx, claims.JTI, claims.Remaining(s.codec.Now()))
	}
	return claims
}

// User loads the account behind an authenticated principal.
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.users.Find(ctx, id)
}

// ChangePassword replaces the password, revoking every outstanding token,
// and returns a fresh pair bound to the new version.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) (TokenPair, error) {
	if current == "" || next == "" {
		return TokenPair{}, fmt.Errorf("%w: current and new password are required", ErrInvalidInput)
	}
	if err := ValidatePassword(next); err != nil {
		return TokenPair{}, err
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return TokenPair{}, fmt.Errorf("hash password: %w", err)
	}
	version, err := s.users.UpdatePassword(ctx, userID, hash)
	if err != nil {
		return TokenPair{}, err
	}
	user.TokenVersion = version
	return s.issuePair(user.Subject())
}

// SetStatus moves an account to status. Suspension and rejection revoke tokens.
func (s *Service) SetStatus(ctx context.Context, userID string, status Status) (*User, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.users.SetStatus(ctx, userID, status, status.RevokesTokens())
}

// EnsureAdmin creates an approved admin account unless the email is taken.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*User, error) {
	return s.EnsureUser(ctx, email, password, RoleAdmin)
}

// EnsureUser creates an approved account with role unless the email is
// taken. A new account's password must pass ValidatePassword.
func (s *Service) EnsureUser(ctx context.Context, email, password string, role Role) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if existing, err := s.users.FindByEmail(ctx, email); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.codec.Now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       StatusApproved,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// checkVersion rejects tokens whose embedded version differs from the stored one.
func (s *Service) checkVersion(ctx context.Context, claims *token.Claims) error {
	current, err := s.users.TokenVersion(ctx, claims.ID)
	if errors.Is(err, ErrNotFound) {
		return token.ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("load token version: %w", err)
	}
	if claims.TokenVersion != current {
		return ErrTokenRevoked
	}
	return nil
}

func (s *Service) issuePair(sub token.Subject) (TokenPair, error) {
	access, ac, err := s.codec.IssueAccess(sub)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rc, err := s.codec.IssueRefresh(sub)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  ac.Expiry(),
		RefreshExpiresAt: rc.Expiry(),
		AccessID:         ac.JTI,
		RefreshID:        rc.JTI,
	}, nil
}

// statusError maps a non-approved account status to its login error.
func statusError(status Status) error {
	switch status {
	case StatusApproved:
		return nil
	case StatusPending:
		return ErrAccountPending
	case StatusRejected:
		return ErrAccountRejected
	case StatusSuspended:
		return ErrAccountSuspended
	default:
		return ErrInvalidCredentials
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Now exposes the codec clock so callers stamp events consistently.
func (s *Service) Now() time.Time {
	return s.codec.Now()
}
