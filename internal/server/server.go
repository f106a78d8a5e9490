package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/eid-tools/dds-hashcode/internal/config"
	"github.com/eid-tools/dds-hashcode/internal/logger"
	"github.com/eid-tools/dds-hashcode/internal/server/handlers"
	"github.com/eid-tools/dds-hashcode/internal/server/middleware"
	"github.com/eid-tools/dds-hashcode/internal/services"
	"github.com/eid-tools/dds-hashcode/internal/version"
)

type Server struct {
	config   *config.ServerEnvironment
	logger   *slog.Logger
	router   *chi.Mux
	services *services.Services
}

func NewServer(
	cfg *config.ServerEnvironment,
	svc *services.Services,
	logger *slog.Logger,
) *Server {
	server := &Server{
		config:   cfg,
		logger:   logger,
		router:   chi.NewRouter(),
		services: svc,
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server
}

// Router returns the HTTP handler (used by tests that do not need a listener)
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(logger.RequestLogging(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(chimiddleware.Timeout(s.config.RequestTimeout))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HandleHealth)
	s.router.Get("/ready", handlers.HandleReadiness(s.services.Queries))
	s.router.Get("/version", handlers.HandleVersion(version.Get()))
	s.router.Get("/.well-known/jwks.json", handlers.HandleJWKS(s.services.JWKS))

	sessions := handlers.NewSessionHandler(s.services.Signing, s.services.Token)

	s.router.Route("/v1/sessions", func(r chi.Router) {
		r.Use(middleware.RequestSizeLimit(s.config.MaxRequestSize))

		r.Post("/", sessions.HandleStartSession)
		r.Post("/new", sessions.HandleCreateSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", sessions.HandleGetSession)
			r.Delete("/", sessions.HandleCloseSession)
			r.Get("/container", sessions.HandleGetContainer)

			r.Post("/datafiles", sessions.HandleAddDataFile)
			r.Delete("/datafiles/{name}", sessions.HandleRemoveDataFile)

			r.Post("/signatures", sessions.HandlePrepareSignature)
			r.Post("/signatures/token", sessions.HandleSignWithToken)
			r.Put("/signatures/{signatureID}", sessions.HandleFinalizeSignature)
		})
	})
}

// Start runs the HTTP server and the expired session sweep until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr),
			slog.String("session_store", s.services.StoreName))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down HTTP server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP server shutdown error",
				slog.String("error", err.Error()))
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		s.logger.Info("HTTP server shutdown complete")
		return nil
	})

	g.Go(func() error {
		s.sweepExpiredSessions(gctx)
		return nil
	})

	return g.Wait()
}

// sweepExpiredSessions closes sessions that were not used for SESSION_MAX_AGE, every SESSION_SWEEP_INTERVAL
func (s *Server) sweepExpiredSessions(ctx context.Context) {
	ticker := time.NewTicker(s.config.SessionSweepInterval)
	defer ticker.Stop()

	sweepLogger := s.logger.With(slog.String("component", "housekeeping"))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.services.Signing.SweepExpired(ctx, s.config.SessionMaxAge)
			if err != nil && ctx.Err() == nil {
				sweepLogger.Warn("failed to sweep expired sessions", slog.String("error", err.Error()))
				continue
			}
			if removed > 0 {
				sweepLogger.Debug("sweep complete", slog.Int("removed", removed))
			}
		}
	}
}

// Shutdown releases the session store connections
func (s *Server) Shutdown() {
	s.services.Close()
}
