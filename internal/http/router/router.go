package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/health"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/handler"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/middleware"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/response"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"github.com/sandeepkv93/carspot-identity-service/internal/security"
)

const (
	defaultBodyLimit = 1 << 20

	// resetPathPrefix is followed by the raw reset token.
	resetPathPrefix = "/api/v1/auth/password/reset/"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	AdminHandler   *handler.AdminHandler
	JWTManager     *security.JWTManager
	Accounts       repository.AccountRepository
	CORSOrigins    []string
	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(defaultBodyLimit))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ready, results := dep.Readiness.Ready(r.Context())
		if results == nil {
			results = []health.CheckResult{}
		}
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	gate := middleware.AccessGate(dep.JWTManager, dep.Accounts)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", dep.AuthHandler.Register)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/password/forgot", dep.AuthHandler.ForgotPassword)
			r.Post("/password/reset/{token}", dep.AuthHandler.ResetPassword)
			r.With(gate, middleware.RequireCapability(domain.CapabilityUser)).Post("/super-admin/verify", dep.AuthHandler.VerifySuperAdmin)
		})

		r.Group(func(r chi.Router) {
			r.Use(gate)
			r.Use(middleware.RequireCapability(domain.CapabilityUser))
			r.Get("/me", dep.UserHandler.Me)
			r.Patch("/me", dep.UserHandler.UpdateMe)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(gate)
			r.Use(middleware.RequireCapability(domain.CapabilityAdmin))
			r.Get("/stats", dep.AdminHandler.Stats)
			r.Get("/accounts", dep.AdminHandler.ListAccounts)
			r.Route("/accounts/{id}", func(r chi.Router) {
				r.Get("/", dep.AdminHandler.GetAccount)
				r.Delete("/", dep.AdminHandler.DeleteAccount)
				r.Patch("/role", dep.AdminHandler.ChangeRole)
				r.Post("/ban", dep.AdminHandler.Ban)
				r.Post("/unban", dep.AdminHandler.Unban)
			})
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server", otelhttp.WithFilter(traceable))
	}
	return h
}

// traceable keeps requests whose URL carries a credential out of server spans,
// since span attributes record the raw target.
func traceable(r *http.Request) bool {
	return !strings.HasPrefix(r.URL.Path, resetPathPrefix)
}
