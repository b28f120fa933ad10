package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"loanhub-auth-service/internal/http/middleware"
	"loanhub-auth-service/internal/http/response"
	"loanhub-auth-service/internal/observability"
	"loanhub-auth-service/internal/service"
)

type UserHandler struct {
	accounts *service.AccountService
	sessions *service.SessionService
	logger   *slog.Logger
}

func NewUserHandler(accounts *service.AccountService, sessions *service.SessionService, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, sessions: sessions, logger: logger}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "missing auth context", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, service.NewAccountView(principal.Account))
}

type updateProfileRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "missing auth context", nil)
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == nil && req.Email == nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "nothing to update", nil)
		return
	}
	account, err := h.accounts.UpdateProfile(r.Context(), principal.Account.ID, req.Username, req.Email)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.Audit(r, "account.profile_updated", "account_id", account.ID)
	response.JSON(w, r, http.StatusOK, service.NewAccountView(account))
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "missing auth context", nil)
		return
	}
	views, err := h.sessions.ListActive(r.Context(), principal.Account.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, views)
}

func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "missing auth context", nil)
		return
	}
	sessionID, err := strconv.ParseUint(chi.URLParam(r, "session_id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "invalid session id", nil)
		return
	}
	changed, err := h.sessions.Revoke(r.Context(), principal.Account.ID, uint(sessionID))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	status := "revoked"
	if !changed {
		status = "already_revoked"
	}
	observability.Audit(r, "session.revoked", "account_id", principal.Account.ID, "session_id", sessionID, "status", status)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": status})
}
