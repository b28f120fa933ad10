package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"loanhub-auth-service/internal/http/response"
	"loanhub-auth-service/internal/service"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "malformed request body", nil)
		return false
	}
	return true
}

func clientInfo(r *http.Request) service.ClientInfo {
	return service.ClientInfo{
		UserAgent: r.UserAgent(),
		IP:        r.RemoteAddr,
	}
}

// writeServiceError is the single place the service failure taxonomy is
// mapped to transport statuses. Anything unrecognized is a store or
// signer fault: logged with context, returned opaque.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		response.Error(w, r, http.StatusConflict, response.CodeConflict, "username already taken", nil)
	case errors.Is(err, service.ErrEmailTaken):
		response.Error(w, r, http.StatusConflict, response.CodeConflict, "email already taken", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "invalid email or password", nil)
	case errors.Is(err, service.ErrAccountInactive):
		response.Error(w, r, http.StatusForbidden, response.CodeAccountInactive, "account is inactive", nil)
	case errors.Is(err, service.ErrAccountNotFound):
		response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "account not found", nil)
	case errors.Is(err, service.ErrInvalidRefreshToken), errors.Is(err, service.ErrRefreshReuseDetected):
		// Reuse detection is intentionally indistinguishable here.
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "invalid refresh token", nil)
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
		response.Internal(w, r)
	}
}
