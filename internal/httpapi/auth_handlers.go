package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tiergate.dev/internal/audit"
	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         *auth.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type statusRequest struct {
	Status auth.Status `json:"status"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "Email and password are required")
		return
	}

	sess, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		e := audit.FromRequest(r, audit.LoginFailed)
		e.Email = strings.ToLower(strings.TrimSpace(req.Email))
		e.Details = map[string]string{"reason": failureReason(err)}
		a.record(r, e)
		handleError(w, r, err)
		return
	}

	e := audit.FromRequest(r, audit.LoginSuccess)
	e.UserID, e.Email, e.TokenID = sess.User.ID, sess.User.Email, sess.Tokens.AccessID
	a.record(r, e)

	a.setTokenCookies(w, sess.Tokens)
	writeJSON(w, http.StatusOK, loginResponse{
		User:         sess.User,
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	raw := refreshToken(w, r)
	if raw == "" {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "No refresh token provided")
		return
	}

	pair, claims, err := a.auth.Rotate(r.Context(), raw)
	if err != nil {
		if claims == nil {
			claims = token.Decode(raw)
		}
		e := audit.FromRequest(r, audit.TokenRefreshFailed)
		if claims != nil {
			e.UserID, e.Email, e.TokenID = claims.ID, claims.Email, claims.JTI
		}
		e.Details = map[string]string{"reason": failureReason(err)}
		a.record(r, e)

		switch {
		case errors.Is(err, token.ErrTokenExpired):
			writeError(w, r, http.StatusUnauthorized, codeRefreshTokenExpired, "Refresh token expired")
		case errors.Is(err, token.ErrTokenInvalid):
			writeError(w, r, http.StatusUnauthorized, codeTokenInvalid, "Invalid refresh token")
		case errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrTokenReused):
			writeError(w, r, http.StatusUnauthorized, codeTokenRevoked, "Refresh token has been revoked")
		default:
			handleError(w, r, err)
		}
		return
	}

	e := audit.FromRequest(r, audit.TokenRefresh)
	e.UserID, e.Email, e.TokenID = claims.ID, claims.Email, claims.JTI
	e.Details = map[string]string{"newTokenId": pair.RefreshID}
	a.record(r, e)

	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if raw := refreshToken(w, r); raw != "" {
		e := audit.FromRequest(r, audit.Logout)
		if claims := a.auth.Logout(r.Context(), raw); claims != nil {
			e.UserID, e.Email, e.TokenID = claims.ID, claims.Email, claims.JTI
		}
		a.record(r, e)
	}
	a.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logout successful"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.User(r.Context(), principal(r).UserID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, codeTokenInvalid, "Invalid token")
			return
		}
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	p := principal(r)
	pair, err := a.auth.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		handleError(w, r, err)
		return
	}

	e := audit.FromRequest(r, audit.PasswordChanged)
	e.UserID, e.Email, e.TokenID = p.UserID, p.Email, pair.AccessID
	a.record(r, e)

	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Password updated",
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (a *API) setUserStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	user, err := a.auth.SetStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		handleError(w, r, err)
		return
	}

	if ev, ok := statusEvents[user.Status]; ok {
		e := audit.FromRequest(r, ev)
		e.UserID, e.Email = user.ID, user.Email
		e.Details = map[string]string{"actor": principal(r).UserID}
		a.record(r, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

var statusEvents = map[auth.Status]audit.EventType{
	auth.StatusApproved:  audit.AccountApproved,
	auth.StatusRejected:  audit.AccountRejected,
	auth.StatusSuspended: audit.AccountSuspended,
}

// refreshToken reads the refresh_token cookie, falling back to a JSON body.
func refreshToken(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	if r.ContentLength == 0 {
		return ""
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "expired"
	case errors.Is(err, token.ErrTokenInvalid):
		return "invalid"
	case errors.Is(err, auth.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, auth.ErrTokenReused):
		return "reused"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountPending):
		return "account_pending"
	case errors.Is(err, auth.ErrAccountRejected):
		return "account_rejected"
	case errors.Is(err, auth.ErrAccountSuspended):
		return "account_suspended"
	default:
		return "error"
	}
}
