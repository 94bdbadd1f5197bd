package httpapi

import (
	"net/http"
	"strings"
	"time"

	"tiergate.dev/internal/auth"
)

const (
	authHeader         = "Authorization"
	bearer             = "Bearer "
	accessCookieName   = "access_token"
	refreshCookieName  = "refresh_token"
	accessCookieMaxAge = 3600
	refreshCookieAge   = 604800
)

// CookieOptions controls the credential cookies.
type CookieOptions struct {
	Secure bool
	Domain string
}

// withAuth resolves the access token from the Authorization header or the
// access_token cookie and stores the principal in the request context.
func (a *API) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := accessToken(r)
		if raw == "" {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "Not authenticated")
			return
		}
		principal, err := a.auth.Authenticate(r.Context(), raw)
		if err != nil {
			handleError(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin must run inside withAuth.
func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.withAuth(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok || !p.IsAdmin() {
			writeError(w, r, http.StatusForbidden, codeForbidden, "Admin access required")
			return
		}
		next(w, r)
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func accessToken(r *http.Request) string {
	if tok, ok := extractBearerToken(r.Header.Get(authHeader)); ok {
		return tok
	}
	if c, err := r.Cookie(accessCookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearer):])
	return tok, tok != ""
}

func (a *API) setTokenCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, a.cookie(accessCookieName, pair.AccessToken, accessCookieMaxAge))
	http.SetCookie(w, a.cookie(refreshCookieName, pair.RefreshToken, refreshCookieAge))
}

func (a *API) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		c := a.cookie(name, "", -1)
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (a *API) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   a.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
