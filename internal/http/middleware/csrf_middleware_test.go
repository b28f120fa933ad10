package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func csrfHandler() http.Handler {
	return CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFSafeMethodsSkipCheck(t *testing.T) {
	h := csrfHandler()
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/x", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", method, rec.Code)
		}
	}
}

func TestCSRFMatchingTokens(t *testing.T) {
	h := csrfHandler()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-123"})
	req.Header.Set("X-CSRF-Token", "tok-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCSRFMismatchRejected(t *testing.T) {
	h := csrfHandler()

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-123"})
	req.Header.Set("X-CSRF-Token", "tok-456")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("mismatch: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing tokens: expected 403, got %d", rec.Code)
	}
}

func TestCSRFBearerOnlyRequestIsExempt(t *testing.T) {
	h := csrfHandler()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer-only request must be exempt, got %d", rec.Code)
	}
}

func TestCSRFCookieSessionWithAuthHeaderStillChecked(t *testing.T) {
	h := csrfHandler()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-session"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cookie session must still pass csrf, got %d", rec.Code)
	}
}
