package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/broadcaster/internal/config"
	"github.com/foxzi/broadcaster/internal/ipfilter"
	"github.com/foxzi/broadcaster/internal/metrics"
	"github.com/foxzi/broadcaster/internal/session/sandbox"
	"github.com/foxzi/broadcaster/internal/state"
	"github.com/foxzi/broadcaster/internal/template"
)

// Version is reported by /health; set by the binary
var Version = "dev"

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	state      *state.State
	config     *config.APIConfig
	ipFilter   *ipfilter.Filter
	logger     *slog.Logger
	startTime  time.Time

	templates *TemplateServer
	sandbox   *SandboxServer
}

// ServerOptions contains options for creating a server
type ServerOptions struct {
	State           *state.State
	Config          *config.APIConfig
	Logger          *slog.Logger
	TemplateStorage *template.Storage // optional
	SandboxStorage  *sandbox.Storage  // optional, sandbox sessions only
}

// NewServer creates a new API server
func NewServer(st *state.State, cfg *config.APIConfig, logger *slog.Logger) *Server {
	return NewServerWithOptions(ServerOptions{
		State:  st,
		Config: cfg,
		Logger: logger,
	})
}

// NewServerWithOptions creates a new API server with all optional routes
func NewServerWithOptions(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		router:    chi.NewRouter(),
		state:     opts.State,
		config:    opts.Config,
		ipFilter:  ipfilter.New(opts.Config.AllowedIPs, opts.Config.TrustProxy, logger),
		logger:    logger,
		startTime: time.Now(),
	}
	if opts.TemplateStorage != nil {
		s.templates = NewTemplateServer(opts.TemplateStorage, logger)
	}
	if opts.SandboxStorage != nil {
		s.sandbox = NewSandboxServer(opts.SandboxStorage)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	if s.config.TrustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.ipFilter.HTTPMiddleware)
	s.router.Use(metrics.HTTPMiddleware)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(bodyLimitMiddleware)

		r.Get("/status", s.handleStatus)
		r.Post("/session/start", s.handleSessionStart)
		r.Post("/session/logout", s.handleLogout)
		r.Post("/session/events", s.handleSessionEvent)

		r.Get("/contacts", s.handleContacts)
		r.Post("/contacts/refresh", s.handleRefreshContacts)
		r.Post("/contacts/select-all", s.handleSelectAll)
		r.Post("/contacts/deselect-all", s.handleDeselectAll)
		r.Post("/contacts/{id}/toggle", s.handleToggle)

		r.Get("/lists", s.handleLists)
		r.Post("/lists", s.handleCreateList)
		r.Delete("/lists/active", s.handleDeactivateList)
		r.Get("/lists/{id}", s.handleGetList)
		r.Put("/lists/{id}", s.handleEditList)
		r.Delete("/lists/{id}", s.handleDeleteList)
		r.Post("/lists/{id}/activate", s.handleActivateList)

		r.Get("/groups", s.handleGroups)
		r.Post("/groups/{id}/import", s.handleImportGroup)

		r.Get("/broadcasts", s.handleBroadcasts)
		r.Post("/broadcasts", s.handleStartBroadcast)
		r.Get("/broadcasts/{id}", s.handleGetBroadcast)
		r.Post("/broadcasts/{id}/cancel", s.handleCancelBroadcast)

		r.Post("/preview", s.handlePreview)

		if s.templates != nil {
			s.templates.RegisterRoutes(r)
		}
		if s.sandbox != nil {
			s.sandbox.RegisterRoutes(r)
		}
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
