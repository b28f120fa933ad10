package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/http/response"
	"loanhub-auth-service/internal/observability"
	"loanhub-auth-service/internal/security"
	"loanhub-auth-service/internal/service"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the authenticated account attached to the request context
// once the authentication gate passes.
type Principal struct {
	Account *domain.Account
	Claims  *security.Claims
}

// AccountResolver re-fetches the account behind a token's subject claim.
// Satisfied by *service.AccountService.
type AccountResolver interface {
	GetAccount(ctx context.Context, id uint) (*domain.Account, error)
}

// Authenticate resolves a bearer (or cookie) access token into a
// Principal. Tokens are stateless on signature alone, so the account is
// re-fetched and must still be active; a token minted before a
// deactivation dies here rather than at its natural expiry.
func Authenticate(jwtMgr *security.JWTManager, resolver AccountResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, failMsg, err := resolvePrincipal(r, jwtMgr, resolver)
			if err != nil {
				response.Internal(w, r)
				return
			}
			if principal == nil {
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthenticated, failMsg, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// AuthenticateOptional performs the same resolution but degrades to an
// anonymous request instead of failing, for routes that behave
// differently for authenticated callers.
func AuthenticateOptional(jwtMgr *security.JWTManager, resolver AccountResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _, err := resolvePrincipal(r, jwtMgr, resolver)
			if err != nil {
				response.Internal(w, r)
				return
			}
			if principal != nil {
				r = r.WithContext(withPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolvePrincipal returns (nil, reason, nil) for every authentication
// failure; the reason string only varies between invalid and expired for
// client messaging, never the status. A non-nil error means the store
// failed.
func resolvePrincipal(r *http.Request, jwtMgr *security.JWTManager, resolver AccountResolver) (*Principal, string, error) {
	raw := security.GetCookie(r, "access_token")
	source := "cookie"
	if raw == "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			raw = strings.TrimSpace(auth[7:])
			source = "bearer"
		}
	}
	if raw == "" {
		observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
		return nil, "missing access token", nil
	}

	claims, err := jwtMgr.ParseAccessToken(raw)
	if err != nil {
		if security.IsExpired(err) {
			observability.RecordAccessTokenValidation(r.Context(), "expired", source)
			return nil, "expired access token", nil
		}
		observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
		return nil, "invalid access token", nil
	}
	accountID, err := claims.AccountID()
	if err != nil {
		observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
		return nil, "invalid access token", nil
	}

	account, err := resolver.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			observability.RecordAccessTokenValidation(r.Context(), "unknown_account", source)
			return nil, "invalid access token", nil
		}
		return nil, "", err
	}
	if !account.Active() {
		observability.RecordAccessTokenValidation(r.Context(), "inactive_account", source)
		return nil, "invalid access token", nil
	}

	observability.RecordAccessTokenValidation(r.Context(), "valid", source)
	return &Principal{Account: account, Claims: claims}, "", nil
}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}
