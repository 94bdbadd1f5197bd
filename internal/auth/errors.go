package auth

import "errors"

var (
	ErrNotFound        = errors.New("auth: not found")
	ErrAlreadyExists   = errors.New("auth: already exists")
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountPending     = errors.New("auth: account pending approval")
	ErrAccountRejected    = errors.New("auth: account rejected")
	ErrAccountSuspended   = errors.New("auth: account suspended")

	// ErrTokenRevoked means the token carries a stale tokenVersion.
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrTokenReused means a refresh token id was presented after it was spent.
	ErrTokenReused = errors.New("auth: refresh token already used")
)
