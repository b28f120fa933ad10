package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/http/response"
	"loanhub-auth-service/internal/observability"
	"loanhub-auth-service/internal/service"
)

// AdminHandler backs the role-gated administration routes. Authorization
// itself lives in the middleware chain, not here.
type AdminHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

func NewAdminHandler(accounts *service.AccountService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, logger: logger}
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	views := make([]service.AccountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, service.NewAccountView(&accounts[i]))
	}
	response.JSON(w, r, http.StatusOK, views)
}

type createAccountRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// CreateAccount lets an admin provision an account with an explicit role.
func (h *AdminHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	details := validateRegistration(registerRequest{Username: req.Username, Email: req.Email, Password: req.Password})
	if req.Role != "" && !req.Role.Valid() {
		details["role"] = "unknown role"
	}
	if len(details) > 0 {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "invalid account input", details)
		return
	}
	account, err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.Audit(r, "admin.account_created", "account_id", account.ID, "role", account.Role)
	response.JSON(w, r, http.StatusCreated, service.NewAccountView(account))
}

type setRoleStatusRequest struct {
	Role   *domain.Role   `json:"role,omitempty"`
	Status *domain.Status `json:"status,omitempty"`
}

// SetRoleAndStatus mutates role and activation state. Setting status to
// inactive is the soft delete; accounts are never hard-deleted.
func (h *AdminHandler) SetRoleAndStatus(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "invalid account id", nil)
		return
	}
	var req setRoleStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	details := map[string]string{}
	if req.Role != nil && !req.Role.Valid() {
		details["role"] = "unknown role"
	}
	if req.Status != nil && !req.Status.Valid() {
		details["status"] = "unknown status"
	}
	if req.Role == nil && req.Status == nil {
		details["body"] = "role or status is required"
	}
	if len(details) > 0 {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "invalid mutation", details)
		return
	}

	account, err := h.accounts.SetRoleAndStatus(r.Context(), uint(accountID), req.Role, req.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.Audit(r, "admin.account_mutated", "account_id", account.ID, "role", account.Role, "status", account.Status)
	response.JSON(w, r, http.StatusOK, service.NewAccountView(account))
}
