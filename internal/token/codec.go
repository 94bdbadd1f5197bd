// Package token issues and verifies the signed access and refresh tokens
// carried by clients. It performs no I/O.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrTokenExpired is returned when now >= exp.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenInvalid covers bad signatures, malformed input, missing claims
	// and a token presented as the wrong type.
	ErrTokenInvalid = errors.New("token: invalid")

	errMissingSecret = errors.New("token: signing secret is not configured")
)

// Type distinguishes access from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Subject is the identity snapshot embedded into a token.
type Subject struct {
	ID           string
	Email        string
	Role         string
	TokenVersion int64
}

// Claims is the exact payload shape of both token types.
type Claims struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	Type         Type   `json:"type"`
	JTI          string `json:"jti"`
	TokenVersion int64  `json:"tokenVersion"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

// Expiry returns exp as a time.
func (c *Claims) Expiry() time.Time { return time.Unix(c.ExpiresAt, 0).UTC() }

// Remaining is the lifetime left at now, never negative.
func (c *Claims) Remaining(now time.Time) time.Duration {
	d := c.Expiry().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// GetExpirationTime and the getters below satisfy jwt.Claims. Time checks
// happen in Verify, not in the jwt validator.
func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}
func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c *Claims) GetIssuer() (string, error) { return "", nil }
func (c *Claims) GetSubject() (string, error) { return c.ID, nil }
func (c *Claims) GetAudience() (jwt.ClaimStrings, error) { return nil, nil }

// Codec signs tokens with HS256 using a separate secret per token type.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
	newID         func() string
}

// Option configures Codec behavior.
type Option func(*Codec) error

// WithSecrets sets the access and refresh signing secrets.
func WithSecrets(access, refresh string) Option {
	return func(c *Codec) error {
		access, refresh = strings.TrimSpace(access), strings.TrimSpace(refresh)
		if access == "" || refresh == "" {
			return errMissingSecret
		}
		c.accessSecret = []byte(access)
		c.refreshSecret = []byte(refresh)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(c *Codec) error {
		if ttl > 0 {
			c.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(c *Codec) error {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewCodec constructs a Codec. WithSecrets is mandatory.
func NewCodec(opts ...Option) (*Codec, error) {
	c := &Codec{
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if len(c.accessSecret) == 0 || len(c.refreshSecret) == 0 {
		return nil, errMissingSecret
	}
	return c, nil
}

// Now returns the codec clock reading.
func (c *Codec) Now() time.Time { return c.now() }

// TTL returns the configured lifetime of the token type.
func (c *Codec) TTL(typ Type) time.Duration {
	if typ == TypeRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// IssueAccess signs a one hour access token for s.
func (c *Codec) IssueAccess(s Subject) (string, Claims, error) {
	return c.issue(s, TypeAccess)
}

// IssueRefresh signs a seven day refresh token for s.
func (c *Codec) IssueRefresh(s Subject) (string, Claims, error) {
	return c.issue(s, TypeRefresh)
}

func (c *Codec) issue(s Subject, typ Type) (string, Claims, error) {
	if strings.TrimSpace(s.ID) == "" {
		return "", Claims{}, errors.New("token: subject id is required")
	}
	if strings.TrimSpace(s.Email) == "" || strings.TrimSpace(s.Role) == "" {
		return "", Claims{}, errors.New("token: subject email and role are required")
	}
	now := c.now().UTC()
	claims := Claims{
		ID:           s.ID,
		Email:        s.Email,
		Role:         s.Role,
		Type:         typ,
		JTI:          c.newID(),
		TokenVersion: s.TokenVersion,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(c.TTL(typ)).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(c.secret(typ))
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, required claims, type and expiry. Expiry is
// inclusive: a token whose exp equals the current second is expired.
func (c *Codec) Verify(raw string, want Type) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret(want), nil
	}); err != nil {
		return nil, ErrTokenInvalid
	}
	if !claims.complete() || claims.Type != want {
		return nil, ErrTokenInvalid
	}
	if c.now().Unix() >= claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// Decode reads claims without verifying anything. It returns nil for input
// that is not a structurally valid token and is meant for logging only.
func Decode(raw string) *Claims {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}
	return claims
}

func (c *Codec) secret(typ Type) []byte {
	if typ == TypeRefresh {
		return c.refreshSecret
	}
	return c.accessSecret
}

func (c *Claims) complete() bool {
	return strings.TrimSpace(c.ID) != "" &&
		strings.TrimSpace(c.Email) != "" &&
		strings.TrimSpace(c.Role) != "" &&
		strings.TrimSpace(c.JTI) != "" &&
		c.Type != "" &&
		c.IssuedAt > 0 &&
		c.ExpiresAt > 0
}
