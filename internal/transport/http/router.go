package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/scan-validator/internal/application/binding"
	"github.com/scan-validator/internal/application/scan"
	"github.com/scan-validator/internal/application/token"
	"github.com/scan-validator/internal/config"
	"github.com/scan-validator/internal/domain"
	"github.com/scan-validator/internal/transport/http/handler"
	appmiddleware "github.com/scan-validator/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background helpers such as the rate limiter's cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw, identifyMw := passThrough, passThrough
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
		identifyMw = appmiddleware.Identify(deps.JWTProvider)
	}

	scanRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.ScanRateLimitRPS), cfg.ScanRateLimitBurst)

	scanSvc := scan.NewService(scan.ServiceDeps{
		Tokens:    deps.Tokens,
		Bindings:  deps.Bindings,
		Ledger:    deps.Ledger,
		Profiles:  deps.Profiles,
		Publisher: deps.Publisher,
	})
	tokenSvc := token.NewService(deps.Tokens, cfg.TokenTTL)
	bindingSvc := binding.NewService(deps.Bindings)

	healthH := handler.NewHealthHandler()
	scanH := handler.NewScanHandler(scanSvc)
	tokenH := handler.NewTokenHandler(tokenSvc)
	bindingH := handler.NewBindingHandler(bindingSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes ────────────────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		// Anonymous scans reach the handler and are answered in the scan envelope.
		r.With(scanRL.Limit, identifyMw).Post("/scans", scanH.Validate)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/attendance/last", scanH.LastEvent)

			r.With(appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleIssuer)).Post("/tokens", tokenH.Issue)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/bindings/{id}", bindingH.Get)
				r.Delete("/bindings/{id}", bindingH.Reset)
			})
		})
	})

	return r
}

func passThrough(next http.Handler) http.Handler { return next }
