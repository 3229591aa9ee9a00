// Package web provides the JSON HTTP API for bulk import and export.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/schoolbulk/internal/config"
	"github.com/JonMunkholm/schoolbulk/internal/core"
	"github.com/JonMunkholm/schoolbulk/internal/logging"
	"github.com/JonMunkholm/schoolbulk/internal/metrics"
	"github.com/JonMunkholm/schoolbulk/internal/web/middleware"
)

// Server is the HTTP server for the import service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(metrics.InstrumentHandler)
	s.router.Use(securityHeaders)
}

// requestTimeout bounds a route with the configured request timeout.
// Commit and account retry run without it: they are bounded by the import
// limiter and the per-account timeout, and a cancelled commit has already
// written its outcome when chi would answer 504.
func (s *Server) requestTimeout(next http.Handler) http.Handler {
	if s.cfg.Server.RequestTimeout <= 0 {
		return next
	}
	return chimw.Timeout(s.cfg.Server.RequestTimeout)(next)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.Rate.Enabled {
			r.Use(middleware.NewRateLimiter(s.cfg.Rate.RequestsPerSecond, s.cfg.Rate.Burst).Handler)
		}
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))
		r.Use(middleware.Actor)

		r.Group(func(r chi.Router) {
			r.Use(s.requestTimeout)

			// Module registry
			r.Get("/modules", s.handleListModules)
			r.Get("/modules/{moduleID}", s.handleGetModule)
			r.Get("/modules/{moduleID}/template", s.handleDownloadTemplate)

			// Export
			r.Get("/exports/modules", s.handleExportableModules)
		})

		r.Route("/schools/{schoolID}", func(r chi.Router) {
			r.Post("/imports/{moduleID}", s.handleCommit)
			r.Post("/imports/{moduleID}/accounts/retry", s.handleRetryAccounts)

			r.Group(func(r chi.Router) {
				r.Use(s.requestTimeout)

				r.Get("/imports/history", s.handleImportHistory)
				r.Post("/imports/{moduleID}/preview", s.handlePreview)
				r.Post("/imports/{moduleID}/failures.csv", s.handleFailureReport)
				r.Post("/exports", s.handleExport)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	logging.FromContext(context.Background()).Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses. The API serves
// JSON and spreadsheets only, so the CSP forbids everything.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
