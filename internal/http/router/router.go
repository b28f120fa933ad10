package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/health"
	"loanhub-auth-service/internal/http/handler"
	"loanhub-auth-service/internal/http/middleware"
	"loanhub-auth-service/internal/http/response"
	"loanhub-auth-service/internal/security"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	UserHandler      *handler.UserHandler
	AdminHandler     *handler.AdminHandler
	JWTManager       *security.JWTManager
	AccountResolver  middleware.AccountResolver
	CORSOrigins      []string
	APIRateLimitRPM  int
	AuthRateLimitRPM int
	RateLimitBackend middleware.Limiter
	Readiness        *health.ProbeRunner
	EnableOTelHTTP   bool
}

// New assembles the route table. The authentication and authorization
// gates are separate chain links on purpose: several routes need
// "authenticated, any role" while the admin tree layers role membership
// on top.
func New(dep Dependencies) http.Handler {
	limiterBackend := dep.RateLimitBackend
	if limiterBackend == nil {
		limiterBackend = middleware.NewLocalWindowLimiter()
	}
	apiLimiter := middleware.NewRateLimiter(limiterBackend, dep.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api").Middleware()
	authLimiter := middleware.NewRateLimiter(limiterBackend, dep.AuthRateLimitRPM, time.Minute, middleware.FailClosed, "auth").Middleware()

	authenticate := middleware.Authenticate(dep.JWTManager, dep.AccountResolver)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(apiLimiter)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRF)
				r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
				r.Post("/logout", dep.AuthHandler.Logout)
				r.With(authenticate).Post("/logout-all", dep.AuthHandler.LogoutAll)
				r.With(authenticate, authLimiter).Post("/change-password", dep.AuthHandler.ChangePassword)
			})
		})

		// Authenticated, any role.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireRoles())
			r.Get("/me", dep.UserHandler.Me)
			r.Get("/me/sessions", dep.UserHandler.Sessions)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRF)
				r.Patch("/me", dep.UserHandler.UpdateProfile)
				r.Delete("/me/sessions/{session_id}", dep.UserHandler.RevokeSession)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.With(middleware.RequireRoles(domain.RoleAdmin, domain.RoleTreasurer)).Get("/accounts", dep.AdminHandler.ListAccounts)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(domain.RoleAdmin))
				r.Use(middleware.CSRF)
				r.Post("/accounts", dep.AdminHandler.CreateAccount)
				r.Patch("/accounts/{id}", dep.AdminHandler.SetRoleAndStatus)
			})
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
