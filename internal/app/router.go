package app

import (
	"net/http"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/aliuyar1234/sanctus/internal/audit"
	"github.com/aliuyar1234/sanctus/internal/auth"
	"github.com/aliuyar1234/sanctus/internal/config"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/aliuyar1234/sanctus/internal/invites"
	"github.com/aliuyar1234/sanctus/internal/metrics"
	"github.com/aliuyar1234/sanctus/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg *config.Config, st store.Store, svc *Services, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()

	secure := !cfg.IsDev()
	sess := auth.SessionConfig{
		Secret:      cfg.JWTSecret,
		SessionDays: cfg.SessionDays,
		Secure:      secure,
	}

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware(m))
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.CSRFHeaderName, apperrors.RequestIDHeader},
		ExposedHeaders:   []string{apperrors.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret, secure))

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(st))
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(NoCacheMiddleware)
		r.Use(CSRFMiddleware)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/csrf", auth.HandleCSRF(secure))
			r.With(RateLimitMiddleware(cfg.LoginRatePerMin)).Post("/login", auth.HandleLogin(svc.Accounts, svc.Auditor, m, sess))
			r.Post("/logout", auth.HandleLogout(sess))
			r.With(RateLimitMiddleware(cfg.LoginRatePerMin)).Post("/register", auth.HandleRegister(svc.Accounts))
			r.Post("/confirm-email", auth.HandleConfirmEmail(svc.Accounts))
			r.With(RateLimitMiddleware(cfg.LoginRatePerMin)).Post("/resend-confirmation", auth.HandleResendConfirmation(svc.Accounts))
		})

		r.Route("/account", func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/me", auth.HandleMe(svc.Accounts))
			r.Get("/role", auth.HandleRole(svc.Accounts))
		})

		r.Route("/invites", func(r chi.Router) {
			r.With(RateLimitMiddleware(cfg.LoginRatePerMin)).Get("/validate", invites.HandleValidate(svc.Invites))

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(svc.Accounts, domain.RoleSuperAdmin))
				r.Post("/", invites.HandleCreate(svc.Invites, cfg.BaseURL))
				r.Get("/", invites.HandleList(svc.Invites))
			})
		})

		r.With(auth.RequireRole(svc.Accounts, domain.RoleSuperAdmin)).Get("/audit", audit.HandleList(svc.Auditor))
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
