package routes

import (
	"net/http"

	"github.com/BradenHooton/authguard/internal/auth"
	"github.com/BradenHooton/authguard/internal/handlers"
	"github.com/BradenHooton/authguard/internal/middleware"
	"github.com/BradenHooton/authguard/internal/models"
	pkghttp "github.com/BradenHooton/authguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	guardHandler *handlers.GuardHandler,
	healthHandler *handlers.HealthHandler,
	metricsHandler http.Handler,
	tokenManager *auth.TokenManager,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Route not found")
	})

	// Public routes - no authentication required
	router.Get("/health", healthHandler.Health)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}

	router.Route("/v1/subjects/{"+handlers.SubjectParam+"}", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(auth.RequireSubjectAccess(handlers.SubjectParam))

		r.Get("/rate-limit", guardHandler.GetRateLimit)
		r.Get("/lockout", guardHandler.GetLockout)
		r.Get("/backup-codes", guardHandler.GetBackupCodes)
		r.Get("/two-factor", guardHandler.GetTwoFactor)

		// Mutating routes are throttled per client
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(rateLimitConfig))
			r.Use(middleware.RateLimitBySubject(rateLimitConfig))

			r.Post("/rate-limit/attempts", guardHandler.RecordRateLimitAttempt)
			r.Post("/lockout/failures", guardHandler.RecordLockoutFailure)
			r.Post("/backup-codes", guardHandler.GenerateBackupCodes)
			r.Post("/backup-codes/consume", guardHandler.ConsumeBackupCode)
			r.Post("/two-factor/enable", guardHandler.EnableTwoFactor)
			r.Post("/two-factor/verify", guardHandler.VerifyTwoFactor)
			r.Delete("/two-factor", guardHandler.DisableTwoFactor)

			// Clearing a lockout is reserved for the identity backend's admin token
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Post("/lockout/success", guardHandler.RecordLockoutSuccess)
				r.Delete("/lockout", guardHandler.ResetLockout)
			})
		})
	})
}
