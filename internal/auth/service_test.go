package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tiergate.dev/internal/token"
)

type fixture struct {
	svc   *Service
	users *MemoryStore
	now   time.Time
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	f := &fixture{users: NewMemoryStore(), now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec(
		token.WithSecrets("access-secret", "refresh-secret"),
		token.WithClock(func() time.Time { return f.now }),
	)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	f.svc, err = NewService(f.users, codec, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return f
}

func (f *fixture) addUser(t *testing.T, id, email, password string, role Role, status Status) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := f.users.Create(context.Background(), &User{
		ID: id, Email: email, PasswordHash: string(hash), Role: role, Status: status,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

type memSpent struct {
	mu   sync.Mutex
	seen map[string]time.Duration
	err  error
}

func (m *memSpent) MarkSpent(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]time.Duration)
	}
	if _, ok := m.seen[jti]; ok {
		return false, nil
	}
	m.seen[jti] = ttl
	return true, nil
}

func TestLoginIssuesTokensWithCurrentVersion(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)

	sess, err := f.svc.Login(context.Background(), "  V@X.com ", "correct")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	for _, raw := range []string{sess.Tokens.AccessToken, sess.Tokens.RefreshToken} {
		claims := token.Decode(raw)
		if claims == nil || claims.TokenVersion != 0 || claims.ID != "u1" {
			t.Fatalf("unexpected claims: %+v", claims)
		}
	}
	if !sess.Tokens.AccessExpiresAt.Equal(f.now.Add(time.Hour)) {
		t.Fatalf("unexpected access expiry: %v", sess.Tokens.AccessExpiresAt)
	}
	if !sess.Tokens.RefreshExpiresAt.Equal(f.now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry: %v", sess.Tokens.RefreshExpiresAt)
	}
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1", "ok@x.com", "pw", RoleVendor, StatusApproved)
	f.addUser(t, "u2", "pending@x.com", "pw", RoleVendor, StatusPending)
	f.addUser(t, "u3", "rejected@x.com", "pw", RoleVendor, StatusRejected)
	f.addUser(t, "u4", "suspended@x.com", "pw", RoleVendor, StatusSuspended)

	cases := []struct {
		email, password string
		want            error
	}{
		{"", "pw", ErrInvalidInput},
		{"ok@x.com", "", ErrInvalidInput},
		{"nobody@x.com", "pw", ErrInvalidCredentials},
		{"ok@x.com", "wrong", ErrInvalidCredentials},
		{"pending@x.com", "pw", ErrAccountPending},
		{"rejected@x.com", "pw", ErrAccountRejected},
		{"suspended@x.com", "pw", ErrAccountSuspended},
		{"suspended@x.com", "wrong", ErrInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.email+"/"+tc.password, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), tc.email, tc.password)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRotateRejectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)
	sess, err := f.svc.Login(context.Background(), "v@x.com", "correct")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := f.users.UpdatePassword(context.Background(), "u1", "new-hash"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}

	_, claims, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	if errors.Is(err, token.ErrTokenExpired) {
		t.Fatalf("revocation must not look like expiry")
	}
	if claims == nil || claims.ID != "u1" {
		t.Fatalf("claims of the presented token should be returned for auditing")
	}
	if _, err := f.svc.Authenticate(context.Background(), sess.Tokens.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("access token must be revoked too, got %v", err)
	}
}

func TestRotateIssuesFreshPair(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)
	sess, _ := f.svc.Login(context.Background(), "v@x.com", "correct")

	f.now = f.now.Add(2 * time.Hour)
	pair, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if pair.AccessToken == sess.Tokens.AccessToken || pair.RefreshToken == sess.Tokens.RefreshToken {
		t.Fatalf("rotation must produce new tokens")
	}
	if pair.RefreshID == sess.Tokens.RefreshID {
		t.Fatalf("rotation must produce a new jti")
	}
	p, err := f.svc.Authenticate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.UserID != "u1" || p.Email != "v@x.com" || p.Role != RoleVendor {
		t.Fatalf("identity lost in rotation: %+v", p)
	}

	// Without single-use tracking the old token keeps working until the version moves.
	if _, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken); err != nil {
		t.Fatalf("replay without ledger should pass: %v", err)
	}
	if _, err := f.svc.SetStatus(context.Background(), "u1", StatusSuspended); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked after suspension, got %v", err)
	}
}

func TestRotateIssuesFromStoredUser(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)
	sess, err := f.svc.Login(context.Background(), "v@x.com", "correct")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	f.users.mu.Lock()
	f.users.byID["u1"].Role = RoleAdmin
	f.users.mu.Unlock()

	pair, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if claims := token.Decode(pair.AccessToken); claims == nil || claims.Role != string(RoleAdmin) {
		t.Fatalf("rotated pair must carry the stored role, got %+v", claims)
	}

	// moving back to pending does not bump the version but still blocks refresh
	if _, err := f.users.SetStatus(context.Background(), "u1", StatusPending, false); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, _, err := f.svc.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrAccountPending) {
		t.Fatalf("expected ErrAccountPending, got %v", err)
	}
}

func TestRotatePropagatesCodecErrors(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)
	sess, _ := f.svc.Login(context.Background(), "v@x.com", "correct")

	if _, _, err := f.svc.Rotate(context.Background(), sess.Tokens.AccessToken); !errors.Is(err, token.ErrTokenInvalid) {
		t.Fatalf("access token as refresh must be invalid, got %v", err)
	}
	f.now = f.now.Add(7 * 24 * time.Hour)
	if _, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken); !errors.Is(err, token.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestRotateUnknownUserIsInvalid(t *testing.T) {
	f := newFixture(t)
	codec, _ := token.NewCodec(token.WithSecrets("access-secret", "refresh-secret"), token.WithClock(func() time.Time { return f.now }))
	raw, _, _ := codec.IssueRefresh(token.Subject{ID: "ghost", Email: "ghost@x.com", Role: "vendor"})
	if _, _, err := f.svc.Rotate(context.Background(), raw); !errors.Is(err, token.ErrTokenInvalid) {
		t.Fatalf("expected invalid for missing user, got %v", err)
	}
}

func TestRotateWithSpentLedgerIsSingleUse(t *testing.T) {
	ledger := &memSpent{}
	f := newFixture(t, WithSpentTokens(ledger))
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)
	sess, _ := f.svc.Login(context.Background(), "v@x.com", "correct")

	f.now = f.now.Add(24 * time.Hour)
	if _, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken); err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	if ttl := ledger.seen[sess.Tokens.RefreshID]; ttl != 6*24*time.Hour {
		t.Fatalf("ledger ttl should equal remaining lifetime, got %v", ttl)
	}
	if _, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused, got %v", err)
	}
}

func TestRotateFailsClosedWhenLedgerErrors(t *testing.T) {
	f := newFixture(t, WithSpentTokens(&memSpent{err: errors.New("redis down")}))
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)
	sess, _ := f.svc.Login(context.Background(), "v@x.com", "correct")
	if _, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken); err == nil {
		t.Fatalf("expected error when ledger is unavailable")
	}
}

func TestLogoutSpendsRefreshToken(t *testing.T) {
	ledger := &memSpent{}
	f := newFixture(t, WithSpentTokens(ledger))
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)
	sess, _ := f.svc.Login(context.Background(), "v@x.com", "correct")

	claims := f.svc.Logout(context.Background(), sess.Tokens.RefreshToken)
	if claims == nil || claims.JTI != sess.Tokens.RefreshID {
		t.Fatalf("unexpected logout claims: %+v", claims)
	}
	if _, _, err := f.svc.Rotate(context.Background(), sess.Tokens.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("logged out refresh token must not rotate, got %v", err)
	}
	if f.svc.Logout(context.Background(), "garbage") != nil {
		t.Fatalf("garbage logout returns nil claims")
	}
}

func TestChangePasswordRevokesOldTokens(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusApproved)
	sess, _ := f.svc.Login(context.Background(), "v@x.com", "correct")

	if _, err := f.svc.ChangePassword(context.Background(), "u1", "wrong", "N3w-Passw0rd!!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := f.svc.ChangePassword(context.Background(), "u1", "correct", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected policy error, got %v", err)
	}
	pair, err := f.svc.ChangePassword(context.Background(), "u1", "correct", "N3w-Passw0rd!!")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if c := token.Decode(pair.AccessToken); c == nil || c.TokenVersion != 1 {
		t.Fatalf("new tokens must carry version 1: %+v", c)
	}
	if _, err := f.svc.Authenticate(context.Background(), sess.Tokens.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("old access token must be revoked, got %v", err)
	}
	if _, err := f.svc.Authenticate(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("new access token must work: %v", err)
	}
}

func TestSetStatusBumpsOnlyForRevokingStates(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1", "v@x.com", "correct", RoleVendor, StatusPending)
	ctx := context.Background()

	if _, err := f.svc.SetStatus(ctx, "u1", StatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if v, _ := f.users.TokenVersion(ctx, "u1"); v != 0 {
		t.Fatalf("approval must not bump version, got %d", v)
	}
	if _, err := f.svc.SetStatus(ctx, "u1", StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if v, _ := f.users.TokenVersion(ctx, "u1"); v != 1 {
		t.Fatalf("rejection must bump version, got %d", v)
	}
	if _, err := f.svc.SetStatus(ctx, "u1", Status("banned")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, "nobody", StatusApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.EnsureAdmin(context.Background(), "Admin@x.com", "Adm1n-Passw0rd!")
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	second, err := f.svc.EnsureAdmin(context.Background(), "admin@x.com", "ignored")
	if err != nil {
		t.Fatalf("EnsureAdmin again: %v", err)
	}
	if first.ID != second.ID || second.Role != RoleAdmin || second.Status != StatusApproved {
		t.Fatalf("unexpected admin: %+v / %+v", first, second)
	}
}

func TestEnsureAdminRejectsWeakPassword(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.EnsureAdmin(context.Background(), "admin@x.com", "admin"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.users.FindByEmail(context.Background(), "admin@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("weak bootstrap password must not create an account, got %v", err)
	}
}

func TestPrincipalCanActFor(t *testing.T) {
	admin := Principal{UserID: "a", Role: RoleAdmin}
	vendor := Principal{UserID: "v", Role: RoleVendor}
	if !admin.CanActFor("someone") || !vendor.CanActFor("v") || vendor.CanActFor("other") {
		t.Fatalf("unexpected ownership decisions")
	}
	if (Principal{}).CanActFor("") {
		t.Fatalf("anonymous principal must not own empty owner")
	}
}

func TestValidatePassword(t *testing.T) {
	for _, pw := range []string{"Short1!", "alllowercase123!", "ALLUPPERCASE123!", "NoDigitsHere!!", "NoSpecial12345"} {
		if err := ValidatePassword(pw); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected %q to fail policy", pw)
		}
	}
	if err := ValidatePassword("Val1d-Password"); err != nil {
		t.Fatalf("expected valid password: %v", err)
	}
}
