// Package api provides the HTTP server for the storefront routing core.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/narvanalabs/storefront/internal/api/handlers"
	"github.com/narvanalabs/storefront/internal/api/health"
	"github.com/narvanalabs/storefront/internal/api/middleware"
	"github.com/narvanalabs/storefront/internal/auth"
	"github.com/narvanalabs/storefront/internal/domainverify"
	"github.com/narvanalabs/storefront/internal/metrics"
	"github.com/narvanalabs/storefront/internal/router"
	"github.com/narvanalabs/storefront/internal/store"
	"github.com/narvanalabs/storefront/internal/tenantcache"
	"github.com/narvanalabs/storefront/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Deps are the collaborators the server routes to.
type Deps struct {
	Store    store.Store
	Cache    tenantcache.Cache
	Warmer   *tenantcache.Warmer
	Verifier *domainverify.Service
	Auth     *auth.Service
	Metrics  *metrics.Metrics
}

// Server represents the HTTP server.
type Server struct {
	handler       http.Handler
	mux           chi.Router
	httpServer    *http.Server
	deps          Deps
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new server with the given dependencies.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
	s.healthChecker = health.NewChecker(deps.Store, deps.Cache, Version)

	s.setupRouter()
	return s
}

// setupRouter configures the chi mux and wraps it in the host router, so
// routes match the rewritten /{tenantKey}/... paths.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(s.deps.Metrics.Middleware)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", s.healthChecker.Handler())
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	tenants := s.deps.Store.Tenants()

	var warmer handlers.Warmer
	if s.deps.Warmer != nil {
		warmer = s.deps.Warmer
	}
	tenantHandler := handlers.NewTenantHandler(tenants, s.deps.Cache, warmer, s.logger)
	domainHandler := handlers.NewCustomDomainHandler(s.deps.Verifier, s.logger)

	r.Route("/api", func(r chi.Router) {
		authMiddleware := middleware.NewAuthMiddleware(s.deps.Auth, s.logger)
		r.Use(authMiddleware.Authenticate)

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", tenantHandler.List)
			r.Post("/", tenantHandler.Create)

			r.Route("/{"+middleware.SubdomainParam+"}", func(r chi.Router) {
				r.Use(middleware.RequireTenantManager(tenants, s.deps.Cache, s.logger))
				r.Get("/", tenantHandler.Get)
				r.Delete("/", tenantHandler.Delete)

				r.Route("/custom-domain", func(r chi.Router) {
					r.Get("/", domainHandler.Get)
					r.Post("/", domainHandler.Claim)
					r.Put("/", domainHandler.Verify)
					r.Delete("/", domainHandler.Delete)
				})
			})
		})
	})

	siteHandler := handlers.NewSiteHandler(tenants, s.deps.Cache, s.logger)
	r.Get("/{"+handlers.TenantKeyParam+"}", siteHandler.Serve)
	r.Get("/{"+handlers.TenantKeyParam+"}/*", siteHandler.Serve)

	resolver := router.NewResolver(router.Config{
		BaseDomain:    s.config.BaseDomain,
		DevHosts:      s.config.DevHosts,
		ReservedPaths: s.config.ReservedPaths,
	}, s.deps.Cache)

	var warmOnce router.Warmer
	if s.deps.Warmer != nil {
		warmOnce = s.deps.Warmer
	}
	hostRouter := router.New(resolver, warmOnce, s.deps.Metrics, s.logger)

	s.mux = r
	s.handler = hostRouter.Middleware(r)
}

// Start serves until ctx is done or the server fails. It does not shut the
// server down; callers follow it with Shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting server", "addr", addr, "base_domain", s.config.BaseDomain)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown gracefully shuts down the HTTP server, bounded by the configured
// shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the full request pipeline, host routing included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.mux
}
