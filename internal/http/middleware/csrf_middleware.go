package middleware

import (
	"crypto/subtle"
	"net/http"

	"loanhub-auth-service/internal/http/response"
	"loanhub-auth-service/internal/security"
)

// CSRF implements the double-submit check for cookie-authenticated
// mutations: the X-CSRF-Token header must equal the csrf_token cookie.
// Requests authenticating via the Authorization header are exempt since a
// cross-site page cannot set it.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "" && security.GetCookie(r, "access_token") == "" {
			next.ServeHTTP(w, r)
			return
		}
		cookie := security.GetCookie(r, "csrf_token")
		header := r.Header.Get("X-CSRF-Token")
		if cookie == "" || header == "" ||
			subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			response.Error(w, r, http.StatusForbidden, response.CodeForbidden, "csrf token mismatch", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
