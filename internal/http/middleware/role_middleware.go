package middleware

import (
	"net/http"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/http/response"
)

// RequireRoles is the authorization gate. It assumes the authentication
// gate already ran: no principal fails as unauthenticated, not forbidden.
// An empty role set admits any authenticated principal; otherwise the
// principal's role must be a member of the set.
func RequireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, "missing auth context", nil)
				return
			}
			if len(allowed) > 0 {
				if _, member := allowed[principal.Account.Role]; !member {
					response.Error(w, r, http.StatusForbidden, response.CodeForbidden, "insufficient role", map[string]any{"required": roles})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
