package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"loanhub-auth-service/internal/http/middleware"
	"loanhub-auth-service/internal/http/response"
	"loanhub-auth-service/internal/observability"
	"loanhub-auth-service/internal/security"
	"loanhub-auth-service/internal/service"
)

type AuthHandler struct {
	accounts     *service.AccountService
	tokens       *service.TokenService
	cookieSecure bool
	accessTTL    time.Duration
	refreshTTL   time.Duration
	logger       *slog.Logger
}

func NewAuthHandler(accounts *service.AccountService, tokens *service.TokenService, cookieSecure bool, accessTTL, refreshTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		tokens:       tokens,
		cookieSecure: cookieSecure,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		logger:       logger,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionPayload struct {
	Account      service.AccountView `json:"account"`
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	CSRFToken    string              `json:"csrf_token"`
}

// Register self-registers a viewer account and starts its first session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if details := validateRegistration(req); len(details) > 0 {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "invalid registration input", details)
		return
	}

	account, err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password, "")
	if err != nil {
		observability.RecordAuthRegister("failure")
		writeServiceError(w, r, h.logger, err)
		return
	}
	pair, err := h.tokens.Issue(r.Context(), account, clientInfo(r))
	if err != nil {
		observability.RecordAuthRegister("failure")
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.RecordAuthRegister("success")
	observability.Audit(r, "account.registered", "account_id", account.ID)
	h.writeSession(w, r, http.StatusCreated, service.NewAccountView(account), pair)
}

// Login exchanges credentials for a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "email and password are required", nil)
		return
	}

	account, err := h.accounts.AuthenticateCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		observability.RecordAuthLogin("failure")
		writeServiceError(w, r, h.logger, err)
		return
	}
	pair, err := h.tokens.Issue(r.Context(), account, clientInfo(r))
	if err != nil {
		observability.RecordAuthLogin("failure")
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.RecordAuthLogin("success")
	observability.Audit(r, "account.login", "account_id", account.ID)
	h.writeSession(w, r, http.StatusOK, service.NewAccountView(account), pair)
}

// Refresh rotates the presented refresh token. Every failure resolves to
// the same response so the endpoint cannot be probed for why a token
// stopped working.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshTokenFromRequest(r)
	if refreshToken == "" {
		observability.RecordAuthRefresh("missing")
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "invalid refresh token", nil)
		return
	}
	pair, account, err := h.tokens.Rotate(r.Context(), refreshToken, h.accounts.GetAccount, clientInfo(r))
	if err != nil {
		observability.RecordAuthRefresh("failure")
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.RecordAuthRefresh("success")
	h.writeSession(w, r, http.StatusOK, service.NewAccountView(account), pair)
}

// Logout revokes the presented refresh token and clears auth cookies.
// Revocation is idempotent, so logging out twice succeeds both times.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshTokenFromRequest(r)
	if err := h.tokens.RevokeByToken(r.Context(), refreshToken, "logout"); err != nil {
		observability.RecordAuthLogout("failure")
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.RecordAuthLogout("success")
	h.clearAuthCookies(w)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

// LogoutAll revokes every session of the authenticated account.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "missing auth context", nil)
		return
	}
	revoked, err := h.tokens.RevokeAllForAccount(r.Context(), principal.Account.ID, "logout_all")
	if err != nil {
		observability.RecordAuthLogout("failure")
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.RecordAuthLogout("success")
	observability.Audit(r, "account.logout_all", "account_id", principal.Account.ID, "revoked", revoked)
	h.clearAuthCookies(w)
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "logged_out", "revoked_sessions": revoked})
}

// ChangePassword verifies the current password, applies the new one and
// signs the caller out everywhere.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "missing auth context", nil)
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "new password too short", map[string]int{"min_length": minPasswordLength})
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), principal.Account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	observability.Audit(r, "account.password_changed", "account_id", principal.Account.ID)
	h.clearAuthCookies(w)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (h *AuthHandler) refreshTokenFromRequest(r *http.Request) string {
	if token := security.GetCookie(r, "refresh_token"); token != "" {
		return token
	}
	var req refreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, r *http.Request, status int, view service.AccountView, pair service.TokenPair) {
	csrf, err := security.NewCSRFToken()
	if err != nil {
		response.Internal(w, r)
		return
	}
	h.setAuthCookies(w, pair, csrf)
	response.JSON(w, r, status, sessionPayload{
		Account:      view,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		CSRFToken:    csrf,
	})
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, pair service.TokenPair, csrf string) {
	http.SetCookie(w, &http.Cookie{
		Name: "access_token", Value: pair.AccessToken, Path: "/",
		MaxAge: int(h.accessTTL.Seconds()), HttpOnly: true, Secure: h.cookieSecure, SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: "refresh_token", Value: pair.RefreshToken, Path: "/api/v1/auth",
		MaxAge: int(h.refreshTTL.Seconds()), HttpOnly: true, Secure: h.cookieSecure, SameSite: http.SameSiteStrictMode,
	})
	// Readable by the frontend for the double-submit header.
	http.SetCookie(w, &http.Cookie{
		Name: "csrf_token", Value: csrf, Path: "/",
		MaxAge: int(h.refreshTTL.Seconds()), Secure: h.cookieSecure, SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{"access_token", "/"},
		{"refresh_token", "/api/v1/auth"},
		{"csrf_token", "/"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name: c.name, Value: "", Path: c.path, MaxAge: -1,
			HttpOnly: c.name != "csrf_token", Secure: h.cookieSecure, SameSite: http.SameSiteStrictMode,
		})
	}
}

const minPasswordLength = 8

func validateRegistration(req registerRequest) map[string]string {
	details := map[string]string{}
	if n := len(strings.TrimSpace(req.Username)); n < 3 || n > 64 {
		details["username"] = "must be between 3 and 64 characters"
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") || len(email) > 255 {
		details["email"] = "must be a valid email address"
	}
	if len(req.Password) < minPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	return details
}
