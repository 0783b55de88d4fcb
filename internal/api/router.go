package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	customMiddleware "github.com/Jeffreasy/KoruFormsService/internal/api/middleware"
	"github.com/Jeffreasy/KoruFormsService/internal/auth"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/metrics"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

type Server struct {
	Router *chi.Mux
	Pool   Pinger
	Logger *slog.Logger
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Forms       FormService
	Submissions SubmissionService
	Gateway     LoginGateway
	Tokens      auth.TokenProvider
	Reconciler  ReconcileTrigger
	Pool        Pinger
	Logger      *slog.Logger

	RateLimitRPS     float64
	RateLimitBurst   int
	DashboardOrigins []string
	// MetricsToken protects /metrics with a bearer token when set.
	MetricsToken string
}

// isPublicPath reports the widget routes, which accept any origin.
func isPublicPath(p string) bool {
	return p == "/forms/submit" || strings.HasPrefix(p, "/forms/config/")
}

// NewServer builds the router. ctx bounds background work such as rate
// limiter cleanup.
func NewServer(ctx context.Context, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.RateLimitRPS <= 0 {
		d.RateLimitRPS = 5
	}
	if d.RateLimitBurst <= 0 {
		d.RateLimitBurst = 10
	}

	r := chi.NewRouter()

	// 1. Core Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// 2. Sentry (before panic recovery so panics are captured)
	sentryHandler := sentryhttp.New(sentryhttp.Options{
		Repanic: true,
	})
	r.Use(sentryHandler.Handle)

	// 3. Logger & Recovery
	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)
	r.Use(customMiddleware.CORS(d.DashboardOrigins, isPublicPath))

	limiter := customMiddleware.NewIPRateLimiter(ctx, rate.Limit(d.RateLimitRPS), d.RateLimitBurst)
	requireSession := customMiddleware.RequireSession(d.Tokens)

	authHandler := NewAuthHandler(d.Gateway, d.Tokens)
	formHandler := NewFormHandler(d.Forms, d.Submissions)
	publicHandler := NewPublicHandler(d.Forms, d.Submissions)
	adminHandler := NewAdminHandler(d.Reconciler)

	s := &Server{Router: r, Pool: d.Pool, Logger: d.Logger}

	// Operational
	r.Get("/health", s.HealthHandler())
	r.Get("/.well-known/jwks.json", authHandler.JWKS)
	r.Get("/metrics", metricsHandler(d.MetricsToken))

	// Public widget routes
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Get("/forms/config/{id}", publicHandler.Config)
		r.Post("/forms/submit", publicHandler.Submit)
		r.Post("/auth/login", authHandler.Login)
	})

	// Dashboard routes
	r.Group(func(r chi.Router) {
		r.Use(requireSession)

		r.Get("/auth/me", authHandler.Me)

		r.Route("/forms", func(r chi.Router) {
			r.Post("/", formHandler.Create)
			r.Get("/", formHandler.List)
			r.Get("/{id}", formHandler.Get)
			r.Patch("/{id}", formHandler.Update)
			r.Delete("/{id}", formHandler.Delete)
			r.Patch("/{id}/activate", formHandler.Activate)
			r.Get("/{id}/validate-permissions", formHandler.ValidatePermissions)
			r.Get("/{id}/submissions", formHandler.Submissions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(customMiddleware.RequireRole(domain.RoleAdmin))
			r.Post("/reconcile", adminHandler.Reconcile)
		})
	})

	return s
}

func metricsHandler(token string) http.HandlerFunc {
	h := metrics.Handler()
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !auth.SecureCompareTokens(provided, token) {
				helpers.RespondStatus(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		h.ServeHTTP(w, r)
	}
}
