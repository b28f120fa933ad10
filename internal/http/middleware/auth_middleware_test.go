package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/security"
	"loanhub-auth-service/internal/service"
)

type stubResolver struct {
	accounts map[uint]*domain.Account
	err      error
}

func (s *stubResolver) GetAccount(ctx context.Context, id uint) (*domain.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if a, ok := s.accounts[id]; ok {
		return a, nil
	}
	return nil, service.ErrAccountNotFound
}

func newTestManager() *security.JWTManager {
	return security.NewJWTManager(
		"iss",
		"aud",
		"access-secret-abcdefghijklmnopqrstuv",
		"refresh-secret-abcdefghijklmnopqrstu",
	)
}

func viewerAccount() *domain.Account {
	return &domain.Account{
		ID:       1,
		Username: "alice",
		Email:    "alice@x.com",
		Role:     domain.RoleViewer,
		Status:   domain.StatusActive,
	}
}

func okHandler(t *testing.T, sawPrincipal *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); ok && sawPrincipal != nil {
			*sawPrincipal = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateMissingToken(t *testing.T) {
	mgr := newTestManager()
	resolver := &stubResolver{accounts: map[uint]*domain.Account{}}
	h := Authenticate(mgr, resolver)(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "UNAUTHENTICATED") {
		t.Fatalf("expected UNAUTHENTICATED code in body: %s", rec.Body.String())
	}
}

func TestAuthenticateBearerToken(t *testing.T) {
	mgr := newTestManager()
	account := viewerAccount()
	resolver := &stubResolver{accounts: map[uint]*domain.Account{1: account}}

	token, err := mgr.SignAccessToken(account, time.Hour, "jti-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	saw := false
	h := Authenticate(mgr, resolver)(okHandler(t, &saw))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !saw {
		t.Fatal("principal not attached to request context")
	}
}

func TestAuthenticateCookieToken(t *testing.T) {
	mgr := newTestManager()
	account := viewerAccount()
	resolver := &stubResolver{accounts: map[uint]*domain.Account{1: account}}
	token, err := mgr.SignAccessToken(account, time.Hour, "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	h := Authenticate(mgr, resolver)(okHandler(t, nil))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	mgr := newTestManager()
	account := viewerAccount()
	resolver := &stubResolver{accounts: map[uint]*domain.Account{1: account}}
	token, err := mgr.SignAccessToken(account, -time.Minute, "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	h := Authenticate(mgr, resolver)(okHandler(t, nil))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "expired access token") {
		t.Fatalf("expected expiry message: %s", rec.Body.String())
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	mgr := newTestManager()
	account := viewerAccount()
	token, err := mgr.SignAccessToken(account, time.Hour, "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Deactivation after issuance: the signature is still valid but the
	// active re-check fails the request.
	account.Status = domain.StatusInactive
	resolver := &stubResolver{accounts: map[uint]*domain.Account{1: account}}

	h := Authenticate(mgr, resolver)(okHandler(t, nil))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticateDeletedAccount(t *testing.T) {
	mgr := newTestManager()
	token, err := mgr.SignAccessToken(viewerAccount(), time.Hour, "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	resolver := &stubResolver{accounts: map[uint]*domain.Account{}}

	h := Authenticate(mgr, resolver)(okHandler(t, nil))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticateResolverFailure(t *testing.T) {
	mgr := newTestManager()
	token, err := mgr.SignAccessToken(viewerAccount(), time.Hour, "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	resolver := &stubResolver{err: errors.New("store down")}

	h := Authenticate(mgr, resolver)(okHandler(t, nil))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("a store failure is 500, not 401; got %d", rec.Code)
	}
}

func TestAuthenticateOptionalAnonymous(t *testing.T) {
	mgr := newTestManager()
	resolver := &stubResolver{accounts: map[uint]*domain.Account{}}

	saw := false
	h := AuthenticateOptional(mgr, resolver)(okHandler(t, &saw))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous request must pass, got %d", rec.Code)
	}
	if saw {
		t.Fatal("no principal expected for anonymous request")
	}
}
