package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/token"
)

func newAuthnAPI(t *testing.T) (*API, *token.Codec) {
	t.Helper()
	users := auth.NewMemoryStore()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for _, u := range []*auth.User{
		{ID: "admin-1", Email: "admin@example.com", Role: auth.RoleAdmin, Status: auth.StatusApproved},
		{ID: "user-a", Email: "a@example.com", Role: auth.RoleVendor, Status: auth.StatusApproved},
	} {
		u.PasswordHash = "!"
		u.CreatedAt, u.UpdatedAt = now, now
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	codec, err := token.NewCodec(token.WithSecrets("access-secret", "refresh-secret"), token.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := auth.NewService(users, codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &API{auth: svc}, codec
}

func TestRequireAdmin(t *testing.T) {
	a, codec := newAuthnAPI(t)
	handler := a.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		if p := principal(r); !p.IsAdmin() {
			t.Fatalf("principal not in context: %+v", p)
		}
		w.WriteHeader(http.StatusOK)
	})

	adminTok, _, _ := codec.IssueAccess(token.Subject{ID: "admin-1", Email: "admin@example.com", Role: "admin"})
	vendorTok, _, _ := codec.IssueAccess(token.Subject{ID: "user-a", Email: "a@example.com", Role: "vendor"})

	cases := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{"admin", adminTok, http.StatusOK, ""},
		{"vendor", vendorTok, http.StatusForbidden, codeForbidden},
		{"anonymous", "", http.StatusUnauthorized, codeUnauthorized},
		{"garbage", "not-a-token", http.StatusUnauthorized, codeTokenInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/tier-requests", nil)
			if tc.token != "" {
				req.Header.Set(authHeader, bearer+tc.token)
			}
			rr := httptest.NewRecorder()
			handler(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.code == "" {
				return
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, body.Error)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer  abc", "abc", true},
		{"  Bearer xyz  ", "xyz", true},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := extractBearerToken(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("extractBearerToken(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAccessTokenFromCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: "cookie-token"})
	if got := accessToken(req); got != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", got)
	}
	req.Header.Set(authHeader, "Bearer header-token")
	if got := accessToken(req); got != "header-token" {
		t.Fatalf("header must win over cookie, got %q", got)
	}
}
