package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/obs"
	"tiergate.dev/internal/tierrequest"
	"tiergate.dev/internal/token"
)

// Machine-readable error codes.
const (
	codeUnauthorized        = "UNAUTHORIZED"
	codeTokenExpired        = "TOKEN_EXPIRED"
	codeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
	codeTokenInvalid        = "TOKEN_INVALID"
	codeTokenRevoked        = "TOKEN_REVOKED"
	codeInvalidCredentials  = "INVALID_CREDENTIALS"
	codeAccountPending      = "ACCOUNT_PENDING"
	codeAccountRejected     = "ACCOUNT_REJECTED"
	codeAccountSuspended    = "ACCOUNT_SUSPENDED"
	codeForbidden           = "FORBIDDEN"
	codeNotFound            = "NOT_FOUND"
	codeValidation          = "VALIDATION_ERROR"
	codeInvalidState        = "INVALID_STATE"
	codeConflict            = "CONFLICT"
	codeRateLimited         = "RATE_LIMITED"
	codeInternal            = "INTERNAL_ERROR"
)

type errorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg, RequestID: RequestIDFromContext(r.Context())})
}

func writeFieldError(w http.ResponseWriter, r *http.Request, field, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:     codeValidation,
		Message:   msg,
		RequestID: RequestIDFromContext(r.Context()),
		Fields:    map[string]string{field: msg},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleError maps domain errors to responses. Anything unrecognised is
// logged and reported as a bare 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stateErr *tierrequest.StateError
		fieldErr *tierrequest.ValidationError
	)
	switch {
	case errors.As(err, &fieldErr):
		writeFieldError(w, r, fieldErr.Field, fieldErr.Message)
	case errors.As(err, &stateErr):
		writeError(w, r, http.StatusBadRequest, codeInvalidState, stateErr.Error())
	case errors.Is(err, token.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, codeTokenExpired, "Token expired")
	case errors.Is(err, token.ErrTokenInvalid):
		writeError(w, r, http.StatusUnauthorized, codeTokenInvalid, "Invalid token")
	case errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrTokenReused):
		writeError(w, r, http.StatusUnauthorized, codeTokenRevoked, "Token has been revoked")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "Not authenticated")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, auth.ErrAccountPending):
		writeError(w, r, http.StatusUnauthorized, codeAccountPending, "Account pending approval")
	case errors.Is(err, auth.ErrAccountRejected):
		writeError(w, r, http.StatusUnauthorized, codeAccountRejected, "Account rejected")
	case errors.Is(err, auth.ErrAccountSuspended):
		writeError(w, r, http.StatusUnauthorized, codeAccountSuspended, "Account suspended")
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, tierrequest.ErrForbidden):
		writeError(w, r, http.StatusForbidden, codeForbidden, "You do not have permission to perform this action")
	case errors.Is(err, tierrequest.ErrVendorNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "Vendor not found")
	case errors.Is(err, tierrequest.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "Tier change request not found")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "User not found")
	case errors.Is(err, tierrequest.ErrDuplicatePending):
		writeError(w, r, http.StatusConflict, codeConflict, "A pending request of this type already exists")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, codeConflict, "Resource already exists")
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, tierrequest.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeValidation, inputMessage(err))
	default:
		log := obs.Logger()
		log.Error().Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, codeInternal, "Internal server error")
	}
}

// inputMessage strips the package prefix from wrapped validation errors.
func inputMessage(err error) string {
	msg := err.Error()
	if _, rest, ok := strings.Cut(msg, ": "); ok {
		if _, detail, ok := strings.Cut(rest, ": "); ok {
			return detail
		}
		return rest
	}
	return msg
}
