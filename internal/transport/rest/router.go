package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/hospital-auth/internal/audit"
	"github.com/frahmantamala/hospital-auth/internal/auth"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/transport/middleware"
	"github.com/frahmantamala/hospital-auth/internal/transport/swagger"
	"github.com/frahmantamala/hospital-auth/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
)

// Routes carries everything RegisterAllRoutes mounts. Nil handlers are skipped.
type Routes struct {
	Health   *HealthHandler
	Sessions *session.Manager
	Guard    *auth.Guard
	CSRF     *middleware.CSRF
	Throttle *middleware.RateLimiter

	Auth  *auth.Handler
	Users *user.Handler
	Audit *audit.Handler

	HTTPMetrics    *middleware.HTTPMetrics
	MetricsPath    string
	MetricsHandler http.Handler

	OpenAPISpec    []byte
	AllowedOrigins []string
	Logger         *slog.Logger
}

const openAPIPath = "/openapi.yml"

func RegisterAllRoutes(router *chi.Mux, rt Routes) {
	// Apply global middleware
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.CSRFHeader, middleware.TraceHeader},
		ExposedHeaders:   []string{middleware.TraceHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientInfo)
	router.Use(middleware.RecoveryMiddleware(rt.Logger))
	router.Use(middleware.LoggingMiddleware(rt.Logger))
	if rt.HTTPMetrics != nil {
		router.Use(rt.HTTPMetrics.Instrument)
	}

	// Serve OpenAPI spec at root (outside API prefix)
	if len(rt.OpenAPISpec) > 0 {
		router.Get(openAPIPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
			_, _ = w.Write(rt.OpenAPISpec)
		})
		router.Handle("/swagger/*", swagger.Handler(openAPIPath))
	}
	if rt.MetricsHandler != nil && rt.MetricsPath != "" {
		router.Handle(rt.MetricsPath, rt.MetricsHandler)
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		if rt.Health != nil {
			r.Get("/health", rt.Health.healthCheckHandler)
			r.Get("/ping", rt.Health.pingHandler)
		}

		r.Group(func(sr chi.Router) {
			sr.Use(rt.Sessions.Middleware)

			throttle := func(next http.Handler) http.Handler { return next }
			if rt.Throttle != nil {
				throttle = rt.Throttle.Middleware
			}

			// Auth routes
			if rt.Auth != nil {
				sr.Get("/auth/login", rt.Auth.LoginGate)
				sr.With(throttle).Post("/auth/login", rt.Auth.Login)
				sr.With(throttle).Post("/auth/register", rt.Auth.Register)
			}

			// Protected routes that require authentication
			sr.Group(func(pr chi.Router) {
				pr.Use(rt.Guard.RequireAuthenticated)
				pr.Use(rt.CSRF.Protect)

				if rt.Auth != nil {
					pr.Post("/auth/logout", rt.Auth.Logout)
					pr.Get("/auth/session", rt.Auth.Session)
				}
				if rt.Users != nil {
					pr.Get("/users/me", rt.Users.GetCurrentUser)
				}
			})

			// Administrator routes
			sr.Group(func(ar chi.Router) {
				ar.Use(rt.Guard.RequireRole(auth.DenyForbidden, user.RoleAdmin))
				ar.Use(rt.CSRF.Protect)

				if rt.Users != nil {
					ar.Post("/users/{id}/unlock", rt.Users.Unlock)
					ar.Patch("/users/{id}/status", rt.Users.ChangeStatus)
					ar.Put("/users/{id}/roles", rt.Users.ReplaceRoles)
				}
			})

			if rt.Audit != nil {
				sr.With(rt.Guard.RequireRole(auth.DenyRedirectToLogin, user.RoleAdmin)).
					Get("/audit-logs", rt.Audit.List)
			}
		})
	})
}
